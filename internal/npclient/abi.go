package npclient

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"ltrnp/internal/engine"
)

// Wire sizes of the host records.
const (
	SignatureSize = 400
	DataSize      = 68

	sigFieldSize = SignatureSize / 2
)

// Version is the interface version reported to the host.
const Version uint16 = 0x0400

// Result codes returned to the host.
const (
	ResultOK     int32 = 0
	ResultFailed int32 = 1
)

// Scaling from engine units to the host's ranges.
const (
	AngleRange       = 16384.0
	TranslationScale = 64.0
)

const (
	dllSignature = "precise head tracking\n put your head into the game\n now go look around\n\n " +
		"Copyright EyeControl Technologies"
	appSignature = "hardware camera\n software processing data\n track user movement\n\n " +
		"Copyright EyeControl Technologies"
)

// ErrShortRecord is returned when a record is decoded from too few bytes.
var ErrShortRecord = errors.New("record too short")

// Signature is the pair of NUL-padded strings a host checks before it
// trusts the client.
type Signature struct {
	DLL [sigFieldSize]byte
	App [sigFieldSize]byte
}

// DefaultSignature returns the signature hosts expect.
func DefaultSignature() Signature {
	var s Signature
	copy(s.DLL[:], dllSignature)
	copy(s.App[:], appSignature)
	return s
}

// Strings returns both halves without their padding.
func (s Signature) Strings() (dll, app string) {
	return cstring(s.DLL[:]), cstring(s.App[:])
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// MarshalBinary returns the 400-byte wire form.
func (s Signature) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, SignatureSize)
	out = append(out, s.DLL[:]...)
	return append(out, s.App[:]...), nil
}

// UnmarshalBinary decodes the wire form.
func (s *Signature) UnmarshalBinary(b []byte) error {
	if len(b) < SignatureSize {
		return fmt.Errorf("signature: %w: %d bytes", ErrShortRecord, len(b))
	}
	copy(s.DLL[:], b[:sigFieldSize])
	copy(s.App[:], b[sigFieldSize:SignatureSize])
	return nil
}

// Data is the pose record returned by GetData. Field order and widths
// are fixed by the host.
type Data struct {
	Status   int16
	Frame    int16
	Checksum uint32
	Roll     float32
	Pitch    float32
	Yaw      float32
	TX       float32
	TY       float32
	TZ       float32
	Padding  [9]float32
}

// FromPose converts an engine pose to the host's units: angles in degrees
// map onto ±16384, translations are scaled by 64 with X inverted.
func FromPose(p engine.Pose, frame int16) Data {
	return Data{
		Frame: frame,
		Yaw:   scaleAngle(p.Yaw),
		Pitch: scaleAngle(p.Pitch),
		Roll:  scaleAngle(p.Roll),
		TX:    -p.X * TranslationScale,
		TY:    p.Y * TranslationScale,
		TZ:    p.Z * TranslationScale,
	}
}

func scaleAngle(deg float32) float32 {
	return -(deg / 180.0) * AngleRange
}

// MarshalBinary returns the little-endian wire form.
func (d Data) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, DataSize))
	if err := binary.Write(buf, binary.LittleEndian, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the wire form.
func (d *Data) UnmarshalBinary(b []byte) error {
	if len(b) < DataSize {
		return fmt.Errorf("data: %w: %d bytes", ErrShortRecord, len(b))
	}
	return binary.Read(bytes.NewReader(b[:DataSize]), binary.LittleEndian, d)
}
