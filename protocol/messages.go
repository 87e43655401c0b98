package protocol

// Message names sent to the hardware-control server.
const (
	MsgRequestServerInfo = "RequestServerInfo"
	MsgRequestDeviceList = "RequestDeviceList"
	MsgStartScanning     = "StartScanning"
	MsgStopScanning      = "StopScanning"
	MsgScalarCmd         = "ScalarCmd"
	MsgRotateCmd         = "RotateCmd"
	MsgLinearCmd         = "LinearCmd"
	MsgStopDeviceCmd     = "StopDeviceCmd"
	MsgStopAllDevices    = "StopAllDevices"
	MsgBatteryLevelCmd   = "BatteryLevelCmd"
)

// Frame types received from the hardware-control server.
const (
	FrameOk                  = "Ok"
	FrameError               = "Error"
	FrameServerInfo          = "ServerInfo"
	FrameDeviceList          = "DeviceList"
	FrameDeviceAdded         = "DeviceAdded"
	FrameDeviceRemoved       = "DeviceRemoved"
	FrameScanningFinished    = "ScanningFinished"
	FrameBatteryLevelReading = "BatteryLevelReading"
)

// SpecVersion is the protocol message version sent in the handshake.
const SpecVersion = 3

// ActuatorTypeVibrate is the scalar actuator type used for vibration motors.
const ActuatorTypeVibrate = "Vibrate"

// RequestServerInfo identifies the client and protocol version during handshake.
type RequestServerInfo struct {
	ClientName     string `json:"ClientName"`
	MessageVersion int    `json:"MessageVersion"`
}

// ScalarEntry addresses a single scalar actuator motor.
type ScalarEntry struct {
	Index        uint32  `json:"Index"`
	Scalar       float64 `json:"Scalar"`
	ActuatorType string  `json:"ActuatorType"`
}

// ScalarCmd drives scalar actuators (vibration) on a device.
// The Scalars array must carry one entry per motor: unaddressed motors
// are explicitly set to zero, never left unspecified.
type ScalarCmd struct {
	DeviceIndex uint32        `json:"DeviceIndex"`
	Scalars     []ScalarEntry `json:"Scalars"`
}

// RotationEntry addresses a single rotational motor.
type RotationEntry struct {
	Index     uint32  `json:"Index"`
	Speed     float64 `json:"Speed"`
	Clockwise bool    `json:"Clockwise"`
}

// RotateCmd drives rotational actuators on a device.
type RotateCmd struct {
	DeviceIndex uint32          `json:"DeviceIndex"`
	Rotations   []RotationEntry `json:"Rotations"`
}

// VectorEntry addresses a single linear motor.
type VectorEntry struct {
	Index    uint32  `json:"Index"`
	Duration uint32  `json:"Duration"`
	Position float64 `json:"Position"`
}

// LinearCmd drives linear actuators on a device.
type LinearCmd struct {
	DeviceIndex uint32        `json:"DeviceIndex"`
	Vectors     []VectorEntry `json:"Vectors"`
}

// StopDeviceCmd halts all actuators on one device.
type StopDeviceCmd struct {
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// BatteryLevelCmd requests the battery level of one device.
type BatteryLevelCmd struct {
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// ServerInfo is the server's handshake reply.
type ServerInfo struct {
	ServerName     string `json:"ServerName"`
	MessageVersion int    `json:"MessageVersion"`
	MaxPingTime    uint32 `json:"MaxPingTime"`
}

// ServerError is the payload of an Error frame.
type ServerError struct {
	ErrorMessage string `json:"ErrorMessage"`
	ErrorCode    int    `json:"ErrorCode"`
}

// DeviceRemoved is the payload of a DeviceRemoved frame.
type DeviceRemoved struct {
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// DeviceList is the payload of a DeviceList frame.
type DeviceList struct {
	Devices []RawDevice `json:"Devices"`
}

// BatteryLevelReading is the server's reply to a BatteryLevelCmd.
type BatteryLevelReading struct {
	DeviceIndex  uint32  `json:"DeviceIndex"`
	BatteryLevel float64 `json:"BatteryLevel"`
}
