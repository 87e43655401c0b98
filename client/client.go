// Package client implements the protocol client for the hardware-control
// server: connection lifecycle with handshake sequencing, request/reply
// correlation over a single WebSocket, the device registry, and the
// actuation command layer.
package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/protocol"
)

// Status represents the state of the connection to the hardware server
type Status int

// Possible connection statuses
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// result carries a correlated reply (or rejection) to a waiting request.
type result struct {
	payload json.RawMessage
	err     error
}

// connectAttempt is the shared outcome of one in-flight connect. Concurrent
// Connect callers wait on done and observe the identical error, so at most
// one socket and one handshake exist process-wide.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Client manages the single long-lived connection to the hardware-control
// server. The device registry and pending-request table are mutated only
// under mu: the read loop and callers run on parallel goroutines, so the
// registry needs a lock rather than the cooperative-scheduling assumption
// a single-threaded runtime could make.
type Client struct {
	url            string
	clientName     string
	logger         *slog.Logger
	connectTimeout time.Duration
	readinessPoll  time.Duration
	readinessIters int
	dialer         *websocket.Dialer
	limiter        RateLimiter

	nextID atomic.Uint32

	mu      sync.Mutex
	status  Status
	conn    *websocket.Conn
	attempt *connectAttempt
	devices map[uint32]protocol.Device
	pending map[uint32]chan result

	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex

	onConnect       func()
	onDisconnect    func(error)
	onDeviceAdded   func(protocol.Device)
	onDeviceRemoved func(uint32)

	metrics *Metrics
}

// RateLimiter bounds the rate of actuation commands sent to the server.
// Satisfied by *rate.Limiter.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// NewClient creates a client for the hardware-control server at url
func NewClient(url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:            url,
		clientName:     "hapticbridge",
		logger:         slog.Default(),
		connectTimeout: 10 * time.Second,
		readinessPoll:  500 * time.Millisecond,
		readinessIters: 10,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		devices: make(map[uint32]protocol.Device),
		pending: make(map[uint32]chan result),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	return c, nil
}

// URL returns the hardware server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsConnected reports whether the connection is open and handshaken
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// Connect establishes the connection and runs the setup sequence: server
// info handshake, device-list request to seed the registry, then scan
// start. If already connected it returns immediately; if an attempt is in
// flight the caller shares that attempt's outcome. The whole attempt is
// bounded by the connect timeout, after which the socket is force-closed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusConnected {
		c.mu.Unlock()
		return nil
	}
	if c.attempt != nil {
		attempt := c.attempt
		c.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "Connect", "wait for shared attempt")
		}
	}

	attempt := &connectAttempt{done: make(chan struct{})}
	c.attempt = attempt
	c.status = StatusConnecting
	c.mu.Unlock()

	conn, err := c.runConnect(ctx)

	c.mu.Lock()
	// The socket can die between the last handshake reply resolving and
	// this lock being reacquired. In that case the read loop's teardown
	// has already cleared c.conn; the attempt must fail rather than mark
	// a dead connection as established.
	if err == nil && c.conn != conn {
		err = errors.WrapTransient(errors.ErrConnectionLost, "Client", "Connect", "connection closed during setup")
	}
	attempt.err = err
	c.attempt = nil
	if err == nil {
		c.status = StatusConnected
	} else if c.status == StatusConnecting {
		c.status = StatusDisconnected
	}
	c.mu.Unlock()
	close(attempt.done)

	if err == nil {
		c.logger.Info("connected to hardware server", "url", c.url)
		if c.metrics != nil {
			c.metrics.connectsTotal.Inc()
		}
		if c.onConnect != nil {
			c.onConnect()
		}
	}
	return err
}

// runConnect dials the socket and executes the handshake sequence. On
// success it returns the connection it set up so the caller can confirm
// the connection is still the current one before declaring itself
// connected.
func (c *Client) runConnect(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "Connect", "dial server")
		}
		return nil, errors.WrapTransient(err, "Client", "Connect", "dial server")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	steps := []struct {
		name    string
		payload any
	}{
		{protocol.MsgRequestServerInfo, protocol.RequestServerInfo{
			ClientName:     c.clientName,
			MessageVersion: protocol.SpecVersion,
		}},
		{protocol.MsgRequestDeviceList, nil},
		{protocol.MsgStartScanning, nil},
	}

	for _, step := range steps {
		if _, err := c.request(ctx, step.name, step.payload); err != nil {
			c.teardown(conn, err)
			if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "Connect", step.name)
			}
			return nil, errors.WrapTransient(err, "Client", "Connect", step.name)
		}
	}

	return conn, nil
}

// Disconnect closes the socket if open and clears the device registry.
// Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	// The read loop observes the close and finishes teardown; calling
	// teardown here as well keeps Disconnect deterministic when no read
	// loop is running.
	c.teardown(conn, errors.ErrConnectionLost)
}

// EnsureConnected connects if necessary, then waits (best effort) for the
// device registry to be seeded. It polls at the readiness interval up to
// the iteration budget and returns regardless of outcome: callers that
// need a device must still handle the device-not-found case.
func (c *Client) EnsureConnected(ctx context.Context) error {
	if !c.IsConnected() {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	for i := 0; i < c.readinessIters; i++ {
		c.mu.Lock()
		n := len(c.devices)
		c.mu.Unlock()
		if n > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "EnsureConnected", "wait for devices")
		case <-time.After(c.readinessPoll):
		}
	}
	return nil
}

// request sends a reply-expecting command and awaits the correlated reply.
// It fails without registering anything if no connection is open. The
// caller's context bounds the wait, acting as the per-request timeout.
func (c *Client) request(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, errors.ErrNotConnected
	}
	id := c.nextID.Add(1)
	ch := make(chan result, 1)
	c.pending[id] = ch
	conn := c.conn
	c.mu.Unlock()

	data, err := protocol.Encode(name, id, payload)
	if err != nil {
		c.removePending(id)
		return nil, err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.removePending(id)
		return nil, errors.WrapTransient(err, "Client", "request", "write "+name)
	}

	if c.metrics != nil {
		c.metrics.commandsSent.WithLabelValues(name).Inc()
	}

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		c.removePending(id)
		return nil, errors.WrapTransient(ctx.Err(), "Client", "request", "await reply to "+name)
	}
}

// send transmits a command without expecting a correlated reply
func (c *Client) send(name string, payload any) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return errors.ErrNotConnected
	}
	id := c.nextID.Add(1)
	conn := c.conn
	c.mu.Unlock()

	data, err := protocol.Encode(name, id, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return errors.WrapTransient(err, "Client", "send", "write "+name)
	}

	if c.metrics != nil {
		c.metrics.commandsSent.WithLabelValues(name).Inc()
	}
	return nil
}

func (c *Client) removePending(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// resolve completes the pending request matching id with the raw payload.
// Unknown ids are ignored: unsolicited protocol traffic must not error.
func (c *Client) resolve(id uint32, payload json.RawMessage) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- result{payload: payload}
	}
}

// reject fails the pending request matching id. Unknown ids are ignored.
func (c *Client) reject(id uint32, err error) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- result{err: err}
	}
}

// readLoop reads frames until the socket closes, then tears down
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.teardown(conn, err)
			return
		}

		frames, err := protocol.Decode(data)
		if err != nil {
			// Malformed frames are logged and dropped; a bad unit of
			// discovery traffic must not take down the connection.
			c.logger.Warn("dropping malformed frame", "error", err)
			if c.metrics != nil {
				c.metrics.decodeErrors.Inc()
			}
			continue
		}

		for _, frame := range frames {
			c.routeFrame(frame)
		}
	}
}

// teardown clears connection-dependent state after the socket closes:
// the registry is emptied and every pending request is rejected so no
// caller hangs on a reply that can never arrive.
func (c *Client) teardown(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if conn == nil || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.status = StatusDisconnected
	c.devices = make(map[uint32]protocol.Device)
	orphaned := c.pending
	c.pending = make(map[uint32]chan result)
	c.mu.Unlock()

	_ = conn.Close()

	for _, ch := range orphaned {
		ch <- result{err: errors.ErrConnectionLost}
	}

	c.logger.Info("disconnected from hardware server", "url", c.url, "cause", cause)
	if c.metrics != nil {
		c.metrics.disconnectsTotal.Inc()
		c.metrics.devicesRegistered.Set(0)
	}
	if c.onDisconnect != nil {
		c.onDisconnect(cause)
	}
}

// routeFrame dispatches one decoded frame by type
func (c *Client) routeFrame(frame protocol.Frame) {
	if c.metrics != nil {
		c.metrics.framesReceived.WithLabelValues(frame.Type).Inc()
	}

	switch frame.Type {
	case protocol.FrameDeviceAdded:
		var raw protocol.RawDevice
		if err := json.Unmarshal(frame.Raw, &raw); err != nil {
			c.logger.Warn("dropping unparseable DeviceAdded frame", "error", err)
			return
		}
		c.registerDevice(protocol.ParseDevice(raw))

	case protocol.FrameDeviceRemoved:
		var removed protocol.DeviceRemoved
		if err := json.Unmarshal(frame.Raw, &removed); err != nil {
			c.logger.Warn("dropping unparseable DeviceRemoved frame", "error", err)
			return
		}
		c.unregisterDevice(removed.DeviceIndex)

	case protocol.FrameDeviceList:
		var list protocol.DeviceList
		if err := json.Unmarshal(frame.Raw, &list); err != nil {
			c.logger.Warn("dropping unparseable DeviceList frame", "error", err)
			return
		}
		for _, raw := range list.Devices {
			c.registerDevice(protocol.ParseDevice(raw))
		}
		if frame.HasID {
			c.resolve(frame.ID, frame.Raw)
		}

	case protocol.FrameScanningFinished:
		c.logger.Debug("device scan finished")

	case protocol.FrameError:
		var serverErr protocol.ServerError
		if err := json.Unmarshal(frame.Raw, &serverErr); err != nil {
			c.logger.Warn("dropping unparseable Error frame", "error", err)
			return
		}
		if frame.HasID {
			c.reject(frame.ID, fmt.Errorf("%w: %s", errors.ErrServerError, serverErr.ErrorMessage))
		} else {
			c.logger.Warn("server error without correlation id", "message", serverErr.ErrorMessage)
		}

	case protocol.FrameOk, protocol.FrameServerInfo, protocol.FrameBatteryLevelReading:
		if frame.HasID {
			c.resolve(frame.ID, frame.Raw)
		}

	default:
		c.logger.Debug("dropping unhandled frame", "type", frame.Type)
	}
}
