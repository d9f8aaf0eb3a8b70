package influxdb

import (
	"maps"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDeviceState is the measurement every device reading lands in.
const MeasurementDeviceState = "device_state"

// WriteDeviceState queues one device's readings for the current cycle,
// tagged with device_id and kind.
//
// Nil fields are skipped and a call left with no fields writes nothing.
// The write never blocks; points are batched.
//
// Example:
//
//	client.WriteDeviceState("1010", "cover", map[string]any{"position": 40.0})
func (c *Client) WriteDeviceState(deviceID, kind string, fields map[string]any) {
	clean := maps.Clone(fields)
	maps.DeleteFunc(clean, func(_ string, v any) bool { return v == nil })
	if len(clean) == 0 {
		return
	}

	c.writePoint(MeasurementDeviceState, map[string]string{
		"device_id": deviceID,
		"kind":      kind,
	}, clean, time.Now())
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, at))
	c.queued.Add(1)
}
