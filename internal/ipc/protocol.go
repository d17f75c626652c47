// Package ipc carries host calls and operator commands between clients
// and the ltrnpd daemon over a unix socket.
//
// Every message is a 16-byte header followed by a payload. Host calls use
// fixed little-endian payloads that mirror the host's own records, and
// every host call response starts with the host's int32 result code.
// Operator commands use JSON payloads and set FlagJSON.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"ltrnp/internal/health"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x4C544E50 // "LTNP"
)

// MaxPayload bounds a single message payload.
const MaxPayload = 1 << 20

// MessageType identifies the type of IPC message
type MessageType uint16

// responseBit marks a response to the request type in the low bits.
const responseBit MessageType = 0x8000

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005

	// Host calls (0x01xx)
	MsgNPGetSignature             MessageType = 0x0100
	MsgNPQueryVersion             MessageType = 0x0101
	MsgNPReCenter                 MessageType = 0x0102
	MsgNPRegisterWindowHandle     MessageType = 0x0103
	MsgNPUnregisterWindowHandle   MessageType = 0x0104
	MsgNPRegisterProgramProfileID MessageType = 0x0105
	MsgNPRequestData              MessageType = 0x0106
	MsgNPGetData                  MessageType = 0x0107
	MsgNPStopCursor               MessageType = 0x0108
	MsgNPStartCursor              MessageType = 0x0109
	MsgNPStartDataTransmission    MessageType = 0x010A
	MsgNPStopDataTransmission     MessageType = 0x010B

	// Operator commands (0x02xx)
	MsgStatus      MessageType = 0x0200
	MsgRecenter    MessageType = 0x0201
	MsgTogglePause MessageType = 0x0202
	MsgHistory     MessageType = 0x0203
	MsgReloadApps  MessageType = 0x0204
	MsgMetrics     MessageType = 0x0205
)

// Response returns the response type for a request type.
func (t MessageType) Response() MessageType { return t | responseBit }

// IsResponse reports whether t is a response type.
func (t MessageType) IsResponse() bool { return t&responseBit != 0 }

// IsHostCall reports whether t (or the request it answers) is a host call.
func (t MessageType) IsHostCall() bool {
	base := t &^ responseBit
	return base >= MsgNPGetSignature && base <= MsgNPStopDataTransmission
}

var messageNames = map[MessageType]string{
	MsgPing:                       "ping",
	MsgPong:                       "pong",
	MsgHandshake:                  "handshake",
	MsgHandshakeAck:               "handshake_ack",
	MsgError:                      "error",
	MsgNPGetSignature:             "NP_GetSignature",
	MsgNPQueryVersion:             "NP_QueryVersion",
	MsgNPReCenter:                 "NP_ReCenter",
	MsgNPRegisterWindowHandle:     "NP_RegisterWindowHandle",
	MsgNPUnregisterWindowHandle:   "NP_UnregisterWindowHandle",
	MsgNPRegisterProgramProfileID: "NP_RegisterProgramProfileID",
	MsgNPRequestData:              "NP_RequestData",
	MsgNPGetData:                  "NP_GetData",
	MsgNPStopCursor:               "NP_StopCursor",
	MsgNPStartCursor:              "NP_StartCursor",
	MsgNPStartDataTransmission:    "NP_StartDataTransmission",
	MsgNPStopDataTransmission:     "NP_StopDataTransmission",
	MsgStatus:                     "status",
	MsgRecenter:                   "recenter",
	MsgTogglePause:                "toggle_pause",
	MsgHistory:                    "history",
	MsgReloadApps:                 "reload_apps",
	MsgMetrics:                    "metrics",
}

func (t MessageType) String() string {
	if name, ok := messageNames[t&^responseBit]; ok {
		if t.IsResponse() {
			return name + "_resp"
		}
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Header flags
const (
	FlagJSON uint8 = 0x04
)

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a message with a binary payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// NewJSONMessage creates a message with a JSON payload.
func NewJSONMessage(msgType MessageType, requestID uint32, v any) (*Message, error) {
	var payload []byte
	if v != nil {
		var err error
		if payload, err = Encode(v); err != nil {
			return nil, err
		}
	}
	m := NewMessage(msgType, requestID, payload)
	m.Header.Flags |= FlagJSON
	return m, nil
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer in a single call.
func (m *Message) Write(w io.Writer) error {
	m.Header.Length = uint32(len(m.Payload))
	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	hb := bytesWriter{buf: buf}
	if err := m.Header.Write(&hb); err != nil {
		return err
	}
	_, err := w.Write(append(hb.buf, m.Payload...))
	return err
}

type bytesWriter struct{ buf []byte }

func (b *bytesWriter) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ErrShortPayload is returned when a binary payload is truncated.
var ErrShortPayload = errors.New("payload too short")

// EncodeResult builds a host call response payload: the result code
// followed by body.
func EncodeResult(code int32, body []byte) []byte {
	out := make([]byte, 4, 4+len(body))
	binary.LittleEndian.PutUint32(out, uint32(code))
	return append(out, body...)
}

// DecodeResult splits a host call response payload.
func DecodeResult(payload []byte) (int32, []byte, error) {
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("result: %w", ErrShortPayload)
	}
	return int32(binary.LittleEndian.Uint32(payload)), payload[4:], nil
}

// PutInt16 encodes a host short argument.
func PutInt16(v int16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

// Int16 decodes a host short argument.
func Int16(b []byte) (int16, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("int16: %w", ErrShortPayload)
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

// PutUint64 encodes a host handle argument.
func PutUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// Uint64 decodes a host handle argument. A 4-byte handle from a 32-bit
// host is accepted.
func Uint64(b []byte) (uint64, error) {
	switch {
	case len(b) >= 8:
		return binary.LittleEndian.Uint64(b), nil
	case len(b) >= 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	default:
		return 0, fmt.Errorf("handle: %w", ErrShortPayload)
	}
}

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("daemon error %d: %s", e.Code, e.Message)
}

// Error codes
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrNotFound       = 3
	ErrInternalError  = 5
	ErrNotInitialized = 7
	ErrNotTracking    = 8
	ErrUnavailable    = 10
)

// StatusResponse contains daemon status
type StatusResponse struct {
	Version         string             `json:"version"`
	StartedAt       time.Time          `json:"started_at"`
	Uptime          time.Duration      `json:"uptime"`
	Phase           string             `json:"phase"`
	Mode            string             `json:"mode"`
	Initialized     bool               `json:"initialized"`
	TrackingEnabled bool               `json:"tracking_enabled"`
	Profile         string             `json:"profile,omitempty"`
	Generation      uint64             `json:"generation"`
	Engine          string             `json:"engine"`
	Listener        ListenerStatus     `json:"listener"`
	Probe           *ProbeStatus       `json:"probe,omitempty"`
	AppDB           AppDBStatus        `json:"app_db"`
	Journal         bool               `json:"journal"`
	Clients         int                `json:"clients"`
	Health          health.Report      `json:"health"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// ListenerStatus describes the hotkey listener.
type ListenerStatus struct {
	Phase         string `json:"phase"`
	Strategy      string `json:"strategy"`
	RecenterKey   string `json:"recenter_key"`
	PauseKey      string `json:"pause_key"`
	RecenterBound bool   `json:"recenter_bound"`
	PauseBound    bool   `json:"pause_bound"`
}

// ProbeStatus reports the engine call instrument.
type ProbeStatus struct {
	Calls         int64 `json:"calls"`
	MaxConcurrent int32 `json:"max_concurrent"`
	Violations    int64 `json:"violations"`
}

// AppDBStatus describes the application database.
type AppDBStatus struct {
	Path    string `json:"path"`
	Entries int    `json:"entries"`
}

// ToggleResponse reports the mode after a pause toggle.
type ToggleResponse struct {
	Mode string `json:"mode"`
}

// HistoryRequest asks for recent journal entries.
type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// RegistrationInfo is one journaled profile registration.
type RegistrationInfo struct {
	ProfileID int       `json:"profile_id"`
	Name      string    `json:"name"`
	OK        bool      `json:"ok"`
	At        time.Time `json:"at"`
}

// SessionInfo is one journaled transmission session.
type SessionInfo struct {
	ID        int64         `json:"id"`
	Profile   string        `json:"profile"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Open      bool          `json:"open"`
	Frames    uint64        `json:"frames"`
}

// HistoryResponse contains recent journal entries, newest first.
type HistoryResponse struct {
	Registrations []RegistrationInfo `json:"registrations"`
	Sessions      []SessionInfo      `json:"sessions"`
}

// ReloadResponse reports the application database size after a reload.
type ReloadResponse struct {
	Entries int `json:"entries"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	m, _ := NewJSONMessage(MsgError, requestID, &ErrorResponse{
		Code:    code,
		Message: message,
	})
	return m
}

// MetricsRequest selects the metrics export format: "prometheus" (the
// default) or "json". The response payload is the raw export.
type MetricsRequest struct {
	Format string `json:"format,omitempty"`
}
