// Package signal bridges a NATS work-signal subject onto the presence
// controller: each `{"count": n}` message on `<prefix>.work` is fed into
// the edge detector, state snapshots are published on `<prefix>.presence`,
// and one-shot haptic requests are accepted on `<prefix>.haptic`.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/pkg/retry"
	"github.com/c360/hapticbridge/presence"
)

const (
	defaultSubjectPrefix  = "hapticbridge"
	defaultHeartbeat      = 30 * time.Second
	defaultHapticDuration = 200 * time.Millisecond
	defaultReconnectWait  = 2 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

// Controller is the slice of the presence controller the bridge drives.
type Controller interface {
	OnWorkSignal(ctx context.Context, count int)
	Snapshot() presence.State
	SendHaptic(ctx context.Context, strength float64, duration time.Duration) error
}

// workSignal is the wire form of one work-signal sample.
type workSignal struct {
	Count int `json:"count"`
}

// hapticRequest is the wire form of a one-shot haptic request.
type hapticRequest struct {
	Strength   float64 `json:"strength"`
	DurationMs uint32  `json:"duration_ms"`
}

// Bridge connects the work-signal bus to the presence controller.
type Bridge struct {
	url        string
	prefix     string
	heartbeat  time.Duration
	clientName string
	logger     *slog.Logger
	controller Controller
	metrics    *bridgeMetrics

	mu     sync.Mutex
	conn   *nats.Conn
	subs   []*nats.Subscription
	done   chan struct{}
	runCtx context.Context
	cancel context.CancelFunc
}

// NewBridge creates a bridge for the given NATS URL and controller.
func NewBridge(url string, controller Controller, opts ...Option) (*Bridge, error) {
	if url == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("url is empty"), "Bridge", "NewBridge", "validate url")
	}
	if controller == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("controller is nil"), "Bridge", "NewBridge", "validate controller")
	}
	b := &Bridge{
		url:        url,
		prefix:     defaultSubjectPrefix,
		heartbeat:  defaultHeartbeat,
		logger:     slog.Default(),
		controller: controller,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, errors.WrapInvalid(err, "Bridge", "NewBridge", "apply option")
		}
	}
	return b, nil
}

// WorkSubject returns the subject work-signal samples arrive on.
func (b *Bridge) WorkSubject() string { return b.prefix + ".work" }

// PresenceSubject returns the subject state snapshots are published to.
func (b *Bridge) PresenceSubject() string { return b.prefix + ".presence" }

// HapticSubject returns the subject one-shot requests arrive on.
func (b *Bridge) HapticSubject() string { return b.prefix + ".haptic" }

// Start connects to NATS and installs the subscriptions. The initial
// connect is retried with backoff; once connected the NATS client's own
// reconnect loop takes over.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.conn != nil {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	conn, err := retry.DoWithResult(ctx, retry.Quick(), func() (*nats.Conn, error) {
		return nats.Connect(b.url, b.connectionOptions()...)
	})
	if err != nil {
		return errors.WrapTransient(err, "Bridge", "Start", "connect to NATS")
	}

	runCtx, cancel := context.WithCancel(context.Background())

	workSub, err := conn.Subscribe(b.WorkSubject(), b.handleWork)
	if err != nil {
		cancel()
		conn.Close()
		return errors.Wrap(err, "Bridge", "Start", "subscribe work subject")
	}
	hapticSub, err := conn.Subscribe(b.HapticSubject(), b.handleHaptic)
	if err != nil {
		cancel()
		conn.Close()
		return errors.Wrap(err, "Bridge", "Start", "subscribe haptic subject")
	}

	b.mu.Lock()
	b.conn = conn
	b.subs = []*nats.Subscription{workSub, hapticSub}
	b.done = make(chan struct{})
	b.runCtx = runCtx
	b.cancel = cancel
	done := b.done
	b.mu.Unlock()

	go b.heartbeatLoop(done)

	b.logger.Info("signal bridge started",
		"url", conn.ConnectedUrl(),
		"work_subject", b.WorkSubject(),
		"presence_subject", b.PresenceSubject())
	return nil
}

// Stop drains the subscriptions and closes the connection. Idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	conn := b.conn
	subs := b.subs
	done := b.done
	cancel := b.cancel
	b.conn = nil
	b.subs = nil
	b.done = nil
	b.cancel = nil
	b.mu.Unlock()

	if conn == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	close(done)
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			b.logger.Warn("subscription drain failed", "subject", sub.Subject, "error", err)
		}
	}
	conn.Close()
	b.logger.Info("signal bridge stopped")
}

// PublishState publishes a presence snapshot. Wired as the controller's
// change callback; safe to call before Start (the snapshot is dropped).
func (b *Bridge) PublishState(st presence.State) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		b.logger.Debug("presence snapshot dropped, not connected")
		return
	}

	data, err := json.Marshal(st)
	if err != nil {
		b.logger.Warn("presence snapshot marshal failed", "error", err)
		return
	}
	if err := conn.Publish(b.PresenceSubject(), data); err != nil {
		b.logger.Warn("presence snapshot publish failed", "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.snapshotsPublished.Inc()
	}
}

func (b *Bridge) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(defaultReconnectWait),
		nats.Timeout(defaultConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			b.logger.Info("NATS reconnected", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			b.logger.Debug("NATS connection closed")
		}),
	}
	if b.clientName != "" {
		opts = append(opts, nats.Name(b.clientName))
	}
	return opts
}

// handleWork parses one work-signal sample and feeds the edge detector.
// Malformed payloads are logged and dropped so a bad producer cannot
// stall the bridge.
func (b *Bridge) handleWork(msg *nats.Msg) {
	var sample workSignal
	if err := json.Unmarshal(msg.Data, &sample); err != nil {
		b.logger.Warn("malformed work signal dropped",
			"subject", msg.Subject, "error", err)
		if b.metrics != nil {
			b.metrics.malformedDropped.Inc()
		}
		return
	}
	if b.metrics != nil {
		b.metrics.signalsReceived.Inc()
	}
	b.controller.OnWorkSignal(b.runContext(), sample.Count)
}

// handleHaptic runs a one-shot in its own goroutine: SendHaptic holds
// for the requested duration and must not block the subscription.
func (b *Bridge) handleHaptic(msg *nats.Msg) {
	var req hapticRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.logger.Warn("malformed haptic request dropped",
			"subject", msg.Subject, "error", err)
		if b.metrics != nil {
			b.metrics.malformedDropped.Inc()
		}
		return
	}

	duration := time.Duration(req.DurationMs) * time.Millisecond
	if duration <= 0 {
		duration = defaultHapticDuration
	}

	go func() {
		if err := b.controller.SendHaptic(b.runContext(), req.Strength, duration); err != nil {
			b.logger.Warn("haptic one-shot failed",
				"strength", req.Strength, "duration", duration, "error", err)
		}
	}()
}

func (b *Bridge) heartbeatLoop(done chan struct{}) {
	if b.heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.PublishState(b.controller.Snapshot())
		}
	}
}

func (b *Bridge) runContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.runCtx != nil {
		return b.runCtx
	}
	return context.Background()
}
