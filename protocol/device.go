package protocol

// RawActuator is one actuator entry in a device message's command arrays.
type RawActuator struct {
	FeatureDescriptor string `json:"FeatureDescriptor,omitempty"`
	StepCount         uint32 `json:"StepCount"`
	ActuatorType      string `json:"ActuatorType,omitempty"`
}

// RawDeviceMessages holds the per-command actuator arrays of a device message.
type RawDeviceMessages struct {
	ScalarCmd []RawActuator `json:"ScalarCmd,omitempty"`
	RotateCmd []RawActuator `json:"RotateCmd,omitempty"`
	LinearCmd []RawActuator `json:"LinearCmd,omitempty"`
}

// RawDevice is the wire shape of a device in DeviceAdded and DeviceList frames.
type RawDevice struct {
	DeviceIndex    uint32            `json:"DeviceIndex"`
	DeviceName     string            `json:"DeviceName"`
	DeviceMessages RawDeviceMessages `json:"DeviceMessages"`
}

// MotorSpec describes one actuator capability of a device: how many motors
// it has and each motor's step resolution, in wire order.
type MotorSpec struct {
	MotorCount      int
	StepResolutions []uint32
}

// Capabilities holds the parsed actuator capabilities of a device.
// A nil field means the device does not advertise that capability;
// callers test presence via the field being set, never via a zero count.
type Capabilities struct {
	Vibrate *MotorSpec
	Rotate  *MotorSpec
	Linear  *MotorSpec
}

// Device is a parsed device descriptor, keyed by the server-assigned index.
type Device struct {
	Index        uint32
	Name         string
	Capabilities Capabilities
}

// ParseDevice converts a raw device message into a descriptor. Vibration
// motors are the subset of scalar actuators whose type is "Vibrate";
// rotate and linear motors come directly from their command arrays.
// Parsing is pure: the same raw message always yields an equal descriptor.
func ParseDevice(raw RawDevice) Device {
	dev := Device{
		Index: raw.DeviceIndex,
		Name:  raw.DeviceName,
	}

	var vibrators []RawActuator
	for _, actuator := range raw.DeviceMessages.ScalarCmd {
		if actuator.ActuatorType == ActuatorTypeVibrate {
			vibrators = append(vibrators, actuator)
		}
	}

	dev.Capabilities.Vibrate = motorSpec(vibrators)
	dev.Capabilities.Rotate = motorSpec(raw.DeviceMessages.RotateCmd)
	dev.Capabilities.Linear = motorSpec(raw.DeviceMessages.LinearCmd)
	return dev
}

// motorSpec builds a MotorSpec from an actuator group, or nil for an
// empty group: an absent capability is never represented as an empty spec.
func motorSpec(group []RawActuator) *MotorSpec {
	if len(group) == 0 {
		return nil
	}
	spec := &MotorSpec{
		MotorCount:      len(group),
		StepResolutions: make([]uint32, len(group)),
	}
	for i, actuator := range group {
		spec.StepResolutions[i] = actuator.StepCount
	}
	return spec
}
