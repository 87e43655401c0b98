// Package presence converts an edge-triggered work signal into ambient
// haptic feedback: a non-zero signal starts a low-strength vibration, a
// return to zero stops it. The controller owns the presence state machine
// and delegates actuation to a hardware client.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/hapticbridge/protocol"
)

// DefaultStrength is the ambient vibration level used when no explicit
// strength has been configured. Deliberately subtle.
const DefaultStrength = 0.15

// Actuator is the slice of the hardware client the controller needs.
type Actuator interface {
	Vibrate(ctx context.Context, index uint32, strength float64, motor ...int) error
	Stop(ctx context.Context, index uint32) error
	Devices() []protocol.Device
}

// State is a snapshot of the presence state machine.
type State struct {
	Active         bool       `json:"active"`
	Device         uint32     `json:"device"`
	Strength       float64    `json:"strength"`
	Since          *time.Time `json:"since,omitempty"`
	LastWorkSignal int        `json:"last_work_signal"`
}

// Controller runs the presence state machine. All state mutations funnel
// through SetState so the transition rules hold no matter which entry
// point (work signal, toggle, restore) triggered them.
type Controller struct {
	actuator Actuator
	logger   *slog.Logger

	mu    sync.Mutex
	state State

	onChange func(State)

	// now is swappable for tests
	now func() time.Time
}

// Option configures a Controller.
type Option func(*Controller) error

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) error {
		if logger == nil {
			return fmt.Errorf("presence.WithLogger: logger is nil")
		}
		c.logger = logger
		return nil
	}
}

// WithDevice sets the device index targeted by presence actuation.
func WithDevice(index uint32) Option {
	return func(c *Controller) error {
		c.state.Device = index
		return nil
	}
}

// WithStrength sets the ambient vibration strength.
func WithStrength(strength float64) Option {
	return func(c *Controller) error {
		if strength < 0 || strength > 1 {
			return fmt.Errorf("presence.WithStrength: %v outside [0,1]", strength)
		}
		c.state.Strength = strength
		return nil
	}
}

// OnChange registers a callback invoked after every committed state
// change. The callback receives a snapshot and must not block.
func OnChange(fn func(State)) Option {
	return func(c *Controller) error {
		c.onChange = fn
		return nil
	}
}

// NewController creates a presence controller driving the given actuator.
func NewController(actuator Actuator, opts ...Option) (*Controller, error) {
	if actuator == nil {
		return nil, fmt.Errorf("presence.NewController: actuator is nil")
	}
	c := &Controller{
		actuator: actuator,
		logger:   slog.Default(),
		state:    State{Strength: DefaultStrength},
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState applies the transition rules and, when the active flag
// actually changed, drives the hardware. Device and strength are always
// overwritten; Since is set only on the idle-to-active transition,
// cleared on active-to-idle, and preserved while staying active.
// Actuation errors are logged, never returned: the state transition has
// already been committed and a failed motor command must not undo it.
func (c *Controller) SetState(ctx context.Context, active bool, device uint32, strength float64) {
	changed, snap := c.apply(active, device, strength)
	if changed {
		c.actuate(ctx, snap)
	}
	if changed && c.onChange != nil {
		c.onChange(snap)
	}
}

// apply commits the transition under the mutex and reports whether the
// active flag changed.
func (c *Controller) apply(active bool, device uint32, strength float64) (bool, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.state.Active != active
	c.state.Device = device
	c.state.Strength = strength
	c.state.Active = active

	switch {
	case changed && active:
		t := c.now()
		c.state.Since = &t
	case changed && !active:
		c.state.Since = nil
	}
	return changed, c.state
}

func (c *Controller) actuate(ctx context.Context, snap State) {
	var err error
	if snap.Active {
		err = c.actuator.Vibrate(ctx, snap.Device, snap.Strength)
	} else {
		err = c.actuator.Stop(ctx, snap.Device)
	}
	if err != nil {
		c.logger.Warn("presence actuation failed",
			"active", snap.Active,
			"device", snap.Device,
			"error", err)
		return
	}
	c.logger.Info("presence state changed",
		"active", snap.Active,
		"device", snap.Device,
		"strength", snap.Strength)
}

// Start activates presence with the currently configured device and
// strength.
func (c *Controller) Start(ctx context.Context) {
	snap := c.Snapshot()
	c.SetState(ctx, true, snap.Device, snap.Strength)
}

// Stop deactivates presence.
func (c *Controller) Stop(ctx context.Context) {
	snap := c.Snapshot()
	c.SetState(ctx, false, snap.Device, snap.Strength)
}

// Toggle flips the active flag.
func (c *Controller) Toggle(ctx context.Context) {
	snap := c.Snapshot()
	c.SetState(ctx, !snap.Active, snap.Device, snap.Strength)
}

// Restore re-applies a previously captured state, for example after a
// reconnect cleared the hardware side.
func (c *Controller) Restore(ctx context.Context, st State) {
	c.SetState(ctx, st.Active, st.Device, st.Strength)
}

// OnWorkSignal feeds one work-signal sample into the state machine.
// Only the zero/non-zero edge matters: a change in magnitude while the
// signal stays non-zero does not re-trigger actuation.
func (c *Controller) OnWorkSignal(ctx context.Context, count int) {
	c.mu.Lock()
	prev := c.state.LastWorkSignal
	c.state.LastWorkSignal = count
	device, strength := c.state.Device, c.state.Strength
	c.mu.Unlock()

	wasActive := prev != 0
	isActive := count != 0
	if wasActive == isActive {
		return
	}
	c.logger.Debug("work signal edge", "previous", prev, "current", count)
	c.SetState(ctx, isActive, device, strength)
}

// SendHaptic fires a one-shot vibration on the first vibration-capable
// device: vibrate at the given strength, hold for the duration, then set
// strength back to zero. Setting zero rather than issuing a device stop
// leaves any concurrent rotation or linear motion untouched. The trailing
// zero is sent even when ctx is cancelled mid-hold.
func (c *Controller) SendHaptic(ctx context.Context, strength float64, duration time.Duration) error {
	device, ok := c.vibrationDevice()
	if !ok {
		return fmt.Errorf("presence.SendHaptic: no vibration-capable device")
	}

	if err := c.actuator.Vibrate(ctx, device, strength); err != nil {
		return fmt.Errorf("presence.SendHaptic: start failed: %w", err)
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.actuator.Vibrate(stopCtx, device, 0); err != nil {
		return fmt.Errorf("presence.SendHaptic: silence failed: %w", err)
	}
	return ctx.Err()
}

func (c *Controller) vibrationDevice() (uint32, bool) {
	for _, dev := range c.actuator.Devices() {
		if dev.Capabilities.Vibrate != nil {
			return dev.Index, true
		}
	}
	return 0, false
}
