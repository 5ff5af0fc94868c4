package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/foxbridge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Logger is the logging interface used by the client.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client records session transitions and deliveries as InfluxDB points.
// Writes are batched and never block the caller. The zero value is an inert
// client that drops every write.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   Logger

	connected   atomic.Bool
	writeErrors atomic.Uint64
}

// WriteSettings is the batching applied to a configuration.
type WriteSettings struct {
	BatchSize     uint
	FlushInterval time.Duration
}

// SettingsFor fills in defaults for unset batching values.
func SettingsFor(cfg config.InfluxDBConfig) WriteSettings {
	ws := WriteSettings{BatchSize: defaultBatchSize, FlushInterval: defaultFlushInterval}
	if cfg.BatchSize > 0 {
		ws.BatchSize = uint(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		ws.FlushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}
	return ws
}

// Connect pings the server and starts the batching writer. It returns
// ErrDisabled when the integration is switched off. Asynchronous write
// failures are logged and counted.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	ws := SettingsFor(cfg)
	opts := influxdb2.DefaultOptions().
		SetBatchSize(ws.BatchSize).
		SetFlushInterval(uint(ws.FlushInterval.Milliseconds())) // #nosec G115 -- positive by construction
	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, raw); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:   raw,
		writeAPI: raw.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger,
	}
	c.connected.Store(true)
	go c.drainErrors(c.writeAPI.Errors())

	logger.Info("influxdb writer started",
		"url", cfg.URL,
		"bucket", cfg.Bucket,
		"batch_size", ws.BatchSize,
		"flush_interval", ws.FlushInterval.String(),
	)
	return c, nil
}

func ping(ctx context.Context, raw influxdb2.Client) error {
	healthy, err := raw.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		n := c.writeErrors.Add(1)
		c.logger.Error("influxdb write failed", "error", err, "failed_batches", n)
	}
}

// WriteErrors returns how many batches failed to write since Connect.
func (c *Client) WriteErrors() uint64 {
	return c.writeErrors.Load()
}

// IsConnected reports whether the writer is running. It does not contact the
// server; use HealthCheck for that.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush blocks until buffered points are written.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close flushes pending points and stops the writer. Later writes are dropped.
func (c *Client) Close() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
