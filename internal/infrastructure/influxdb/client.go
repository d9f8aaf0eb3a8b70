package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/homepilot-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Stats counts what the sink has handled since Connect.
type Stats struct {
	// PointsQueued is every point handed to the batching writer.
	PointsQueued uint64 `json:"points_queued"`

	// WriteErrors is every batch the server rejected.
	WriteErrors uint64 `json:"write_errors"`
}

// Client is the time-series sink for per-cycle device readings.
//
// Points go to a non-blocking batched writer; batches that fail are
// reported through the SetOnError callback wrapped in ErrWriteFailed.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI

	closed atomic.Bool
	queued atomic.Uint64
	failed atomic.Uint64

	errMu   sync.RWMutex
	onError func(err error)
}

// Connect opens the sink and checks the server answers a ping before
// returning.
//
// Returns ErrDisabled when the config turns InfluxDB off, and
// ErrConnectionFailed when the ping fails or reports unhealthy.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.drainErrors(c.writer.Errors())
	return c, nil
}

// clientOptions maps the batching settings; non-positive values fall
// back to the defaults.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	healthy, err := influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// drainErrors forwards rejected batches until the writer shuts down.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)

		c.errMu.RLock()
		callback := c.onError
		c.errMu.RUnlock()
		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError sets the callback for rejected batches.
func (c *Client) SetOnError(callback func(err error)) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.onError = callback
}

// Stats returns the sink counters.
func (c *Client) Stats() Stats {
	return Stats{
		PointsQueued: c.queued.Load(),
		WriteErrors:  c.failed.Load(),
	}
}

// IsConnected reports whether the sink accepts writes. It is false only
// after Close; use HealthCheck to test the server.
func (c *Client) IsConnected() bool {
	return c.influx != nil && !c.closed.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush sends everything buffered and waits for it. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writer.Flush()
}

// Close flushes pending points and releases the client. Later writes
// are dropped. Safe to call more than once.
func (c *Client) Close() error {
	if c.influx == nil || c.closed.Swap(true) {
		return nil
	}
	c.writer.Flush()
	c.influx.Close()
	return nil
}
