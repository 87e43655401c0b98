package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/hapticbridge/protocol"
)

type actuatorCall struct {
	op       string
	device   uint32
	strength float64
}

type fakeActuator struct {
	mu      sync.Mutex
	calls   []actuatorCall
	devices []protocol.Device
	fail    bool
}

func (f *fakeActuator) Vibrate(_ context.Context, index uint32, strength float64, _ ...int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, actuatorCall{op: "vibrate", device: index, strength: strength})
	if f.fail {
		return fmt.Errorf("hardware unavailable")
	}
	return nil
}

func (f *fakeActuator) Stop(_ context.Context, index uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, actuatorCall{op: "stop", device: index})
	if f.fail {
		return fmt.Errorf("hardware unavailable")
	}
	return nil
}

func (f *fakeActuator) Devices() []protocol.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices
}

func (f *fakeActuator) recorded() []actuatorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]actuatorCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestController(t *testing.T, fa *fakeActuator, opts ...Option) *Controller {
	t.Helper()
	c, err := NewController(fa, opts...)
	require.NoError(t, err)
	return c
}

func TestSetState_ActivationSetsSince(t *testing.T) {
	fa := &fakeActuator{}
	c := newTestController(t, fa)

	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	c.SetState(context.Background(), true, 3, 0.4)

	snap := c.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, uint32(3), snap.Device)
	assert.Equal(t, 0.4, snap.Strength)
	require.NotNil(t, snap.Since)
	assert.Equal(t, fixed, *snap.Since)

	calls := fa.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, actuatorCall{op: "vibrate", device: 3, strength: 0.4}, calls[0])
}

func TestSetState_StayingActivePreservesSince(t *testing.T) {
	fa := &fakeActuator{}
	c := newTestController(t, fa)

	first := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return first }
	c.SetState(context.Background(), true, 1, 0.2)

	later := first.Add(time.Hour)
	c.now = func() time.Time { return later }
	c.SetState(context.Background(), true, 5, 0.8)

	snap := c.Snapshot()
	assert.Equal(t, uint32(5), snap.Device, "device must always be overwritten")
	assert.Equal(t, 0.8, snap.Strength, "strength must always be overwritten")
	require.NotNil(t, snap.Since)
	assert.Equal(t, first, *snap.Since, "Since must survive while staying active")

	assert.Len(t, fa.recorded(), 1, "no actuation without an active-flag change")
}

func TestSetState_DeactivationClearsSince(t *testing.T) {
	fa := &fakeActuator{}
	c := newTestController(t, fa)

	c.SetState(context.Background(), true, 2, 0.3)
	c.SetState(context.Background(), false, 2, 0.3)

	snap := c.Snapshot()
	assert.False(t, snap.Active)
	assert.Nil(t, snap.Since)

	calls := fa.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "stop", calls[1].op)
	assert.Equal(t, uint32(2), calls[1].device)
}

func TestSetState_ActuationErrorDoesNotRevert(t *testing.T) {
	fa := &fakeActuator{fail: true}
	c := newTestController(t, fa)

	c.SetState(context.Background(), true, 0, 0.5)

	snap := c.Snapshot()
	assert.True(t, snap.Active, "state commits even when the hardware call fails")
	assert.NotNil(t, snap.Since)
}

func TestOnWorkSignal_EdgeDetection(t *testing.T) {
	fa := &fakeActuator{}
	c := newTestController(t, fa, WithDevice(1), WithStrength(0.15))

	for _, count := range []int{0, 0, 3, 3, 0, 5, 0} {
		c.OnWorkSignal(context.Background(), count)
	}

	calls := fa.recorded()
	require.Len(t, calls, 4, "only zero/non-zero edges may actuate")
	assert.Equal(t, "vibrate", calls[0].op)
	assert.Equal(t, "stop", calls[1].op)
	assert.Equal(t, "vibrate", calls[2].op)
	assert.Equal(t, "stop", calls[3].op)
	assert.Equal(t, 0.15, calls[0].strength)

	snap := c.Snapshot()
	assert.False(t, snap.Active)
	assert.Zero(t, snap.LastWorkSignal)
}

func TestOnWorkSignal_MagnitudeChangeIsNotAnEdge(t *testing.T) {
	fa := &fakeActuator{}
	c := newTestController(t, fa)

	c.OnWorkSignal(context.Background(), 2)
	c.OnWorkSignal(context.Background(), 7)
	c.OnWorkSignal(context.Background(), 1)

	assert.Len(t, fa.recorded(), 1)
	assert.Equal(t, 1, c.Snapshot().LastWorkSignal)
}

func TestStartStop(t *testing.T) {
	fa := &fakeActuator{}
	c := newTestController(t, fa, WithDevice(2), WithStrength(0.3))

	c.Start(context.Background())
	snap := c.Snapshot()
	assert.True(t, snap.Active)
	assert.NotNil(t, snap.Since)

	// A second Start is a no-op at the hardware level
	c.Start(context.Background())
	assert.Len(t, fa.recorded(), 1)

	c.Stop(context.Background())
	snap = c.Snapshot()
	assert.False(t, snap.Active)
	assert.Nil(t, snap.Since)
	require.Len(t, fa.recorded(), 2)
	assert.Equal(t, actuatorCall{op: "stop", device: 2}, fa.recorded()[1])
}

func TestToggle(t *testing.T) {
	fa := &fakeActuator{}
	c := newTestController(t, fa, WithDevice(4))

	c.Toggle(context.Background())
	assert.True(t, c.Snapshot().Active)
	c.Toggle(context.Background())
	assert.False(t, c.Snapshot().Active)

	calls := fa.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "vibrate", calls[0].op)
	assert.Equal(t, uint32(4), calls[0].device)
	assert.Equal(t, "stop", calls[1].op)
}

func TestRestore(t *testing.T) {
	fa := &fakeActuator{}
	c := newTestController(t, fa)

	c.Restore(context.Background(), State{Active: true, Device: 6, Strength: 0.25})

	snap := c.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, uint32(6), snap.Device)
	assert.Equal(t, 0.25, snap.Strength)
	require.Len(t, fa.recorded(), 1)
}

func TestOnChange_FiresOnlyOnTransition(t *testing.T) {
	fa := &fakeActuator{}
	var changes []State
	c := newTestController(t, fa, OnChange(func(st State) { changes = append(changes, st) }))

	c.SetState(context.Background(), true, 0, 0.5)
	c.SetState(context.Background(), true, 0, 0.9) // no flag change
	c.SetState(context.Background(), false, 0, 0.9)

	require.Len(t, changes, 2)
	assert.True(t, changes[0].Active)
	assert.False(t, changes[1].Active)
}

func TestSendHaptic(t *testing.T) {
	motors := &protocol.MotorSpec{MotorCount: 1, StepResolutions: []uint32{20}}
	fa := &fakeActuator{devices: []protocol.Device{
		{Index: 0, Name: "Brick"},
		{Index: 3, Name: "Vibe", Capabilities: protocol.Capabilities{Vibrate: motors}},
	}}
	c := newTestController(t, fa)

	require.NoError(t, c.SendHaptic(context.Background(), 0.6, 10*time.Millisecond))

	calls := fa.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, actuatorCall{op: "vibrate", device: 3, strength: 0.6}, calls[0])
	assert.Equal(t, actuatorCall{op: "vibrate", device: 3, strength: 0}, calls[1],
		"the one-shot must end by zeroing strength, not by stopping the device")
}

func TestSendHaptic_NoCapableDevice(t *testing.T) {
	fa := &fakeActuator{devices: []protocol.Device{{Index: 0, Name: "Brick"}}}
	c := newTestController(t, fa)

	err := c.SendHaptic(context.Background(), 0.5, time.Millisecond)
	require.Error(t, err)
	assert.Empty(t, fa.recorded())
}

func TestSendHaptic_CancelledMidHoldStillSilences(t *testing.T) {
	motors := &protocol.MotorSpec{MotorCount: 1, StepResolutions: []uint32{20}}
	fa := &fakeActuator{devices: []protocol.Device{
		{Index: 0, Capabilities: protocol.Capabilities{Vibrate: motors}},
	}}
	c := newTestController(t, fa)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := c.SendHaptic(ctx, 0.5, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)

	calls := fa.recorded()
	require.Len(t, calls, 2, "the trailing zero must be sent despite cancellation")
	assert.Equal(t, actuatorCall{op: "vibrate", device: 0, strength: 0}, calls[1])
}
