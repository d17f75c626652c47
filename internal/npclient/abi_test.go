package npclient

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltrnp/internal/engine"
)

func TestSignatureLayout(t *testing.T) {
	sig := DefaultSignature()

	b, err := sig.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, SignatureSize)

	dll, app := sig.Strings()
	assert.True(t, strings.HasPrefix(dll, "precise head tracking\n"))
	assert.True(t, strings.HasSuffix(dll, "Copyright EyeControl Technologies"))
	assert.True(t, strings.HasPrefix(app, "hardware camera\n"))
	assert.Equal(t, dll, string(b[:len(dll)]))
	assert.Equal(t, byte(0), b[len(dll)], "first half is NUL padded")
	assert.Equal(t, app, string(b[200:200+len(app)]))

	var back Signature
	require.NoError(t, back.UnmarshalBinary(b))
	assert.Equal(t, sig, back)
	assert.ErrorIs(t, back.UnmarshalBinary(b[:399]), ErrShortRecord)
}

func TestDataSize(t *testing.T) {
	assert.Equal(t, DataSize, binary.Size(Data{}))

	b, err := Data{}.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, DataSize)
}

func TestDataWireLayout(t *testing.T) {
	d := Data{Status: 1, Frame: -2, Checksum: 0xdeadbeef, Roll: 1.5, TZ: -3}
	b, err := d.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(b[0:]))
	assert.Equal(t, uint16(0xfffe), binary.LittleEndian.Uint16(b[2:]))
	assert.Equal(t, uint32(0xdeadbeef), binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(b[8:])))
	assert.Equal(t, float32(-3), math.Float32frombits(binary.LittleEndian.Uint32(b[28:])))

	var back Data
	require.NoError(t, back.UnmarshalBinary(b))
	assert.Equal(t, d, back)
	assert.ErrorIs(t, back.UnmarshalBinary(b[:10]), ErrShortRecord)
}

func TestFromPoseScaling(t *testing.T) {
	d := FromPose(engine.Pose{Yaw: 90, Pitch: -45, Roll: 180, X: 1, Y: 2, Z: -0.5}, 42)

	assert.Equal(t, int16(42), d.Frame)
	assert.InDelta(t, -8192, d.Yaw, 1e-3)
	assert.InDelta(t, 4096, d.Pitch, 1e-3)
	assert.InDelta(t, -16384, d.Roll, 1e-3)
	assert.InDelta(t, -64, d.TX, 1e-6)
	assert.InDelta(t, 128, d.TY, 1e-6)
	assert.InDelta(t, -32, d.TZ, 1e-6)
	assert.Zero(t, d.Status)
	assert.Zero(t, d.Checksum)
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultOK, Result(nil))
	assert.Equal(t, ResultFailed, Result(assert.AnError))
}
