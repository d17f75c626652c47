package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := NewMessage(MsgNPGetData, 42, []byte{1, 2, 3})
	require.NoError(t, msg.Write(&buf))
	assert.Equal(t, HeaderSize+3, buf.Len())

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgNPGetData, got.Header.Type)
	assert.Equal(t, uint32(42), got.Header.RequestID)
	assert.Equal(t, uint32(3), got.Header.Length)
	assert.Equal(t, []byte{1, 2, 3}, got.Payload)
}

func TestJSONMessage(t *testing.T) {
	msg, err := NewJSONMessage(MsgHistory, 1, &HistoryRequest{Limit: 5})
	require.NoError(t, err)
	assert.NotZero(t, msg.Header.Flags&FlagJSON)

	var req HistoryRequest
	require.NoError(t, Decode(msg.Payload, &req))
	assert.Equal(t, 5, req.Limit)

	empty, err := NewJSONMessage(MsgStatus, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Payload)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf, 0xDEADBEEF)
	_, err := ReadHeader(bytes.NewReader(buf))
	assert.ErrorContains(t, err, "invalid magic")
}

func TestReadHeaderRejectsNewerVersion(t *testing.T) {
	var buf bytes.Buffer
	msg := NewMessage(MsgPing, 1, nil)
	msg.Header.Version = ProtocolVersion + 1
	require.NoError(t, msg.Write(&buf))
	_, err := ReadHeader(&buf)
	assert.ErrorContains(t, err, "unsupported protocol version")
}

func TestReadMessageRejectsLargePayload(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Magic: ProtocolMagic, Version: ProtocolVersion, Type: MsgPing, Length: MaxPayload + 1}
	require.NoError(t, h.Write(&buf))
	_, err := ReadMessage(&buf)
	assert.ErrorContains(t, err, "payload too large")
}

func TestMessageTypeNames(t *testing.T) {
	assert.Equal(t, "NP_GetData", MsgNPGetData.String())
	assert.Equal(t, "NP_GetData_resp", MsgNPGetData.Response().String())
	assert.Equal(t, "status", MsgStatus.String())
	assert.Equal(t, "0x7777", MessageType(0x7777).String())

	assert.True(t, MsgNPStopDataTransmission.IsHostCall())
	assert.True(t, MsgNPGetSignature.Response().IsHostCall())
	assert.False(t, MsgStatus.IsHostCall())
	assert.False(t, MsgPing.IsHostCall())
	assert.True(t, MsgStatus.Response().IsResponse())
	assert.False(t, MsgStatus.IsResponse())
}

func TestResultEncoding(t *testing.T) {
	payload := EncodeResult(1, []byte{9, 8})
	assert.Equal(t, []byte{1, 0, 0, 0, 9, 8}, payload)

	code, body, err := DecodeResult(payload)
	require.NoError(t, err)
	assert.Equal(t, int32(1), code)
	assert.Equal(t, []byte{9, 8}, body)

	_, _, err = DecodeResult([]byte{0, 0})
	assert.True(t, errors.Is(err, ErrShortPayload))
}

func TestHostArguments(t *testing.T) {
	v, err := Int16(PutInt16(-2))
	require.NoError(t, err)
	assert.Equal(t, int16(-2), v)

	_, err = Int16([]byte{1})
	assert.ErrorIs(t, err, ErrShortPayload)

	h, err := Uint64(PutUint64(0x1122334455667788))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1122334455667788), h)

	h, err = Uint64([]byte{0x78, 0x56, 0x34, 0x12})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x12345678), h)

	_, err = Uint64([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestErrorMessage(t *testing.T) {
	msg := NewErrorMessage(3, ErrNotTracking, "not tracking")
	assert.Equal(t, MsgError, msg.Header.Type)

	var er ErrorResponse
	require.NoError(t, Decode(msg.Payload, &er))
	assert.Equal(t, ErrNotTracking, er.Code)
	assert.Equal(t, "daemon error 8: not tracking", er.Error())
}
