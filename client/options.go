package client

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/hapticbridge/metric"
	"github.com/c360/hapticbridge/protocol"
)

// Option is a functional option for configuring the Client
type Option func(*Client) error

// WithClientName sets the client name reported in the handshake
func WithClientName(name string) Option {
	return func(c *Client) error {
		if name == "" {
			return fmt.Errorf("client name cannot be empty")
		}
		c.clientName = name
		return nil
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithConnectTimeout bounds the entire connect attempt, dial plus handshake
// sequence. After the timeout the socket is force-closed.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("connect timeout must be positive")
		}
		c.connectTimeout = d
		return nil
	}
}

// WithReadinessPoll sets the poll interval and iteration budget used by
// EnsureConnected while waiting for the device registry to be seeded
func WithReadinessPoll(interval time.Duration, iterations int) Option {
	return func(c *Client) error {
		if interval <= 0 || iterations <= 0 {
			return fmt.Errorf("readiness poll interval and iterations must be positive")
		}
		c.readinessPoll = interval
		c.readinessIters = iterations
		return nil
	}
}

// WithRateLimiter bounds the rate of actuation commands. Hardware servers
// tend to misbehave when flooded with rapid scalar updates.
func WithRateLimiter(limiter RateLimiter) Option {
	return func(c *Client) error {
		c.limiter = limiter
		return nil
	}
}

// WithMetrics registers client metrics with the given registry
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) error {
		metrics, err := newMetrics(registry)
		if err != nil {
			return err
		}
		c.metrics = metrics
		return nil
	}
}

// OnConnect sets a callback invoked after a successful connect sequence
func OnConnect(fn func()) Option {
	return func(c *Client) error {
		c.onConnect = fn
		return nil
	}
}

// OnDisconnect sets a callback invoked when the socket closes
func OnDisconnect(fn func(error)) Option {
	return func(c *Client) error {
		c.onDisconnect = fn
		return nil
	}
}

// OnDeviceAdded sets a callback invoked when a device is registered
func OnDeviceAdded(fn func(protocol.Device)) Option {
	return func(c *Client) error {
		c.onDeviceAdded = fn
		return nil
	}
}

// OnDeviceRemoved sets a callback invoked when a device is removed
func OnDeviceRemoved(fn func(uint32)) Option {
	return func(c *Client) error {
		c.onDeviceRemoved = fn
		return nil
	}
}
