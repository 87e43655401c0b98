package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/hapticbridge/errors"
)

func TestEncode_Envelope(t *testing.T) {
	data, err := Encode(MsgRequestServerInfo, 1, RequestServerInfo{
		ClientName:     "hapticbridge",
		MessageVersion: SpecVersion,
	})
	require.NoError(t, err)

	var envelope []map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &envelope))
	require.Len(t, envelope, 1)

	body, ok := envelope[0][MsgRequestServerInfo]
	require.True(t, ok, "envelope key should be the command name")
	assert.Equal(t, float64(1), body["Id"])
	assert.Equal(t, "hapticbridge", body["ClientName"])
	assert.Equal(t, float64(3), body["MessageVersion"])
}

func TestEncode_NilPayload(t *testing.T) {
	data, err := Encode(MsgRequestDeviceList, 7, nil)
	require.NoError(t, err)

	var envelope []map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &envelope))
	require.Len(t, envelope, 1)

	body := envelope[0][MsgRequestDeviceList]
	require.NotNil(t, body)
	assert.Equal(t, float64(7), body["Id"])
	assert.Len(t, body, 1, "no-field commands carry only the id")
}

func TestEncode_NonObjectPayload(t *testing.T) {
	_, err := Encode(MsgStartScanning, 2, "not an object")
	assert.Error(t, err)
}

func TestDecode_SingleFrame(t *testing.T) {
	frames, err := Decode([]byte(`[{"Ok":{"Id":4}}]`))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	assert.Equal(t, FrameOk, frames[0].Type)
	assert.True(t, frames[0].HasID)
	assert.Equal(t, uint32(4), frames[0].ID)
}

func TestDecode_MultipleFrames(t *testing.T) {
	raw := `[{"DeviceAdded":{"DeviceIndex":0,"DeviceName":"Test"}},{"ScanningFinished":{}}]`
	frames, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, FrameDeviceAdded, frames[0].Type)
	assert.False(t, frames[0].HasID, "discovery frames carry no correlation id")
	assert.Equal(t, FrameScanningFinished, frames[1].Type)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"non-JSON", "not json at all"},
		{"empty array", "[]"},
		{"multi-key object", `[{"Ok":{"Id":1},"Error":{"Id":2}}]`},
		{"non-array", `{"Ok":{"Id":1}}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decode([]byte(test.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrDecodeFailed)
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	data, err := Encode(MsgScalarCmd, 9, ScalarCmd{
		DeviceIndex: 2,
		Scalars: []ScalarEntry{
			{Index: 0, Scalar: 0.5, ActuatorType: ActuatorTypeVibrate},
		},
	})
	require.NoError(t, err)

	frames, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, MsgScalarCmd, frames[0].Type)
	assert.Equal(t, uint32(9), frames[0].ID)

	var cmd ScalarCmd
	require.NoError(t, json.Unmarshal(frames[0].Raw, &cmd))
	assert.Equal(t, uint32(2), cmd.DeviceIndex)
	require.Len(t, cmd.Scalars, 1)
	assert.Equal(t, 0.5, cmd.Scalars[0].Scalar)
}
