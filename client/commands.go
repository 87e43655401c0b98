package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/protocol"
)

// clamp bounds a scalar to [0, 1]. Clamping happens before any payload
// construction so no out-of-range value ever reaches the wire.
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// motorTarget validates the optional motor argument of an actuation call.
// At most one motor index may be given; -1 means all motors.
func motorTarget(motor []int) (int, error) {
	switch len(motor) {
	case 0:
		return -1, nil
	case 1:
		if motor[0] < 0 {
			return 0, errors.WrapInvalid(
				fmt.Errorf("motor index %d is negative", motor[0]),
				"Client", "motorTarget", "validate motor")
		}
		return motor[0], nil
	default:
		return 0, errors.WrapInvalid(
			fmt.Errorf("at most one motor index may be given, got %d", len(motor)),
			"Client", "motorTarget", "validate motor")
	}
}

// actuationTarget resolves the device and runs the shared pre-send path:
// readiness wait, registry lookup, and the optional rate limiter.
func (c *Client) actuationTarget(ctx context.Context, index uint32) (protocol.Device, error) {
	if err := c.EnsureConnected(ctx); err != nil {
		return protocol.Device{}, err
	}

	dev, ok := c.Device(index)
	if !ok {
		return protocol.Device{}, fmt.Errorf("%w: index %d", errors.ErrDeviceNotFound, index)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return protocol.Device{}, errors.WrapTransient(err, "Client", "actuationTarget", "rate limit wait")
		}
	}
	return dev, nil
}

// Vibrate drives the device's vibration motors at the given strength,
// clamped to [0, 1]. With no motor argument every motor receives the
// strength; with one, only that motor does and the rest are explicitly
// silenced, because a ScalarCmd is a full-array command.
func (c *Client) Vibrate(ctx context.Context, index uint32, strength float64, motor ...int) error {
	target, err := motorTarget(motor)
	if err != nil {
		return err
	}

	dev, err := c.actuationTarget(ctx, index)
	if err != nil {
		return err
	}

	spec := dev.Capabilities.Vibrate
	if spec == nil {
		return fmt.Errorf("%w: device %d has no vibrate capability", errors.ErrCapabilityUnsupported, index)
	}

	strength = clamp(strength)
	scalars := make([]protocol.ScalarEntry, spec.MotorCount)
	for i := range scalars {
		value := strength
		if target >= 0 && i != target {
			value = 0
		}
		scalars[i] = protocol.ScalarEntry{
			Index:        uint32(i),
			Scalar:       value,
			ActuatorType: protocol.ActuatorTypeVibrate,
		}
	}

	_, err = c.request(ctx, protocol.MsgScalarCmd, protocol.ScalarCmd{
		DeviceIndex: index,
		Scalars:     scalars,
	})
	return err
}

// Rotate drives the device's rotational motors at the given speed, clamped
// to [0, 1], in the given direction. Motor addressing follows the same
// full-array pattern as Vibrate.
func (c *Client) Rotate(ctx context.Context, index uint32, speed float64, clockwise bool, motor ...int) error {
	target, err := motorTarget(motor)
	if err != nil {
		return err
	}

	dev, err := c.actuationTarget(ctx, index)
	if err != nil {
		return err
	}

	spec := dev.Capabilities.Rotate
	if spec == nil {
		return fmt.Errorf("%w: device %d has no rotate capability", errors.ErrCapabilityUnsupported, index)
	}

	speed = clamp(speed)
	rotations := make([]protocol.RotationEntry, spec.MotorCount)
	for i := range rotations {
		value := speed
		if target >= 0 && i != target {
			value = 0
		}
		rotations[i] = protocol.RotationEntry{
			Index:     uint32(i),
			Speed:     value,
			Clockwise: clockwise,
		}
	}

	_, err = c.request(ctx, protocol.MsgRotateCmd, protocol.RotateCmd{
		DeviceIndex: index,
		Rotations:   rotations,
	})
	return err
}

// Linear moves the device's linear motors to the given position, clamped
// to [0, 1], over durationMs. Every motor entry carries the same duration.
func (c *Client) Linear(ctx context.Context, index uint32, position float64, durationMs uint32, motor ...int) error {
	target, err := motorTarget(motor)
	if err != nil {
		return err
	}

	dev, err := c.actuationTarget(ctx, index)
	if err != nil {
		return err
	}

	spec := dev.Capabilities.Linear
	if spec == nil {
		return fmt.Errorf("%w: device %d has no linear capability", errors.ErrCapabilityUnsupported, index)
	}

	position = clamp(position)
	vectors := make([]protocol.VectorEntry, spec.MotorCount)
	for i := range vectors {
		value := position
		if target >= 0 && i != target {
			value = 0
		}
		vectors[i] = protocol.VectorEntry{
			Index:    uint32(i),
			Duration: durationMs,
			Position: value,
		}
	}

	_, err = c.request(ctx, protocol.MsgLinearCmd, protocol.LinearCmd{
		DeviceIndex: index,
		Vectors:     vectors,
	})
	return err
}

// Stop halts all actuators on one device. The device must exist, but no
// capability check applies: stop is universal.
func (c *Client) Stop(ctx context.Context, index uint32) error {
	if _, err := c.actuationTarget(ctx, index); err != nil {
		return err
	}

	_, err := c.request(ctx, protocol.MsgStopDeviceCmd, protocol.StopDeviceCmd{
		DeviceIndex: index,
	})
	return err
}

// StopAll broadcasts a global stop with no per-device targeting. It is
// advisory: when not connected it silently does nothing, since it is
// typically invoked defensively on shutdown paths.
func (c *Client) StopAll(ctx context.Context) error {
	if !c.IsConnected() {
		return nil
	}
	_, err := c.request(ctx, protocol.MsgStopAllDevices, nil)
	return err
}

// Battery queries the device's battery level in [0, 1]. The query is
// advisory: on any failure, including an unsupported device, it returns
// nil rather than an error.
func (c *Client) Battery(ctx context.Context, index uint32) *float64 {
	if _, err := c.actuationTarget(ctx, index); err != nil {
		c.logger.Debug("battery query skipped", "index", index, "error", err)
		return nil
	}

	raw, err := c.request(ctx, protocol.MsgBatteryLevelCmd, protocol.BatteryLevelCmd{
		DeviceIndex: index,
	})
	if err != nil {
		c.logger.Debug("battery query failed", "index", index, "error", err)
		return nil
	}

	var reading protocol.BatteryLevelReading
	if err := json.Unmarshal(raw, &reading); err != nil {
		c.logger.Debug("battery reply unparseable", "index", index, "error", err)
		return nil
	}
	return &reading.BatteryLevel
}
