// Package influxdb provides InfluxDB connectivity for device readings.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes, and health monitoring.
//
// # Purpose
//
// The bridge writes one device_state point per available device on every
// poll cycle, tagged with device_id and kind. Positions, temperatures,
// brightness and sensor values become fields.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceState("1010", "cover", map[string]any{"position": 40.0})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Writes never block. A batch the server rejects reaches the SetOnError
// callback wrapped in ErrWriteFailed and is counted in Stats. Connection
// and health check errors are returned directly.
package influxdb
