package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"ltrnp/internal/npclient"
)

var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// ClientConfig configures a Client.
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns the configuration ltrnpctl uses.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ClientName:     "ltrnpctl",
		ClientVersion:  "dev",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Client talks to ltrnpd over the bridge socket. Requests may be issued
// from several goroutines; responses are matched by request id.
type Client struct {
	cfg ClientConfig

	mu      sync.Mutex
	conn    net.Conn
	pending map[uint32]chan *Message
	session string
	version string

	writeMu sync.Mutex
	reqID   atomic.Uint32
	readers sync.WaitGroup
}

// NewClient returns an unconnected client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Client{cfg: cfg}
}

// Connect dials the daemon and performs the handshake. A socket that is
// missing or refuses connections is reported as ErrDaemonNotRunning.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	conn, err := net.DialTimeout("unix", c.cfg.SocketPath, c.cfg.ConnectTimeout)
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("connect: %w", err)
	}
	c.conn = conn
	c.pending = make(map[uint32]chan *Message)
	c.mu.Unlock()

	c.readers.Add(1)
	go c.readLoop(conn)

	if err := c.handshake(); err != nil {
		c.drop(conn)
		return fmt.Errorf("handshake: %w", err)
	}
	return nil
}

// Close disconnects and waits for the reader goroutine.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.drop(conn)
	}
	c.readers.Wait()
	return nil
}

// drop closes conn if it is still the current connection and fails every
// request waiting on it.
func (c *Client) drop(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	conn.Close()
	c.conn = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// IsConnected reports whether the connection is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SessionID returns the id the daemon assigned at handshake.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ServerVersion returns the daemon version reported at handshake.
func (c *Client) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Client) handshake() error {
	req, err := NewJSONMessage(MsgHandshake, 0, &HandshakeRequest{
		ClientVersion:   c.cfg.ClientVersion,
		ClientName:      c.cfg.ClientName,
		ProtocolVersion: ProtocolVersion,
	})
	if err != nil {
		return err
	}
	resp, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgHandshakeAck {
		return fmt.Errorf("unexpected response type: %s", resp.Header.Type)
	}
	var ack HandshakeResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		return err
	}

	c.mu.Lock()
	c.session, c.version = ack.SessionID, ack.ServerVersion
	c.mu.Unlock()
	return nil
}

func (c *Client) write(conn net.Conn, msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout))
	return msg.Write(conn)
}

// roundTrip sends msg under a fresh request id and waits for the matching
// response. An error message from the daemon is returned as
// *ErrorResponse.
func (c *Client) roundTrip(msg *Message) (*Message, error) {
	id := c.reqID.Add(1)
	msg.Header.RequestID = id
	wait := make(chan *Message, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[id] = wait
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(conn, msg); err != nil {
		c.drop(conn)
		return nil, fmt.Errorf("write message: %w", err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-wait:
		if !ok {
			return nil, ErrConnectionLost
		}
		if resp.Header.Type == MsgError {
			var er ErrorResponse
			if err := Decode(resp.Payload, &er); err != nil {
				return nil, fmt.Errorf("decode error response: %w", err)
			}
			return nil, &er
		}
		return resp, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// readLoop delivers responses to their waiting requests and answers the
// daemon's keepalive pings.
func (c *Client) readLoop(conn net.Conn) {
	defer c.readers.Done()
	defer c.drop(conn)

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}
		if msg.Header.Type == MsgPing {
			c.write(conn, NewMessage(MsgPong, msg.Header.RequestID, nil))
			continue
		}

		c.mu.Lock()
		wait, ok := c.pending[msg.Header.RequestID]
		delete(c.pending, msg.Header.RequestID)
		c.mu.Unlock()
		if ok {
			wait <- msg
		}
	}
}

// requestJSON sends an operator command and decodes the response into out
// when out is not nil.
func (c *Client) requestJSON(t MessageType, in, out any) error {
	req, err := NewJSONMessage(t, 0, in)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	resp, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	if resp.Header.Type != t.Response() {
		return fmt.Errorf("unexpected response type: %s", resp.Header.Type)
	}
	if out == nil {
		return nil
	}
	return Decode(resp.Payload, out)
}

// hostCall sends a host call and returns its result code and body.
func (c *Client) hostCall(t MessageType, args []byte) (int32, []byte, error) {
	resp, err := c.roundTrip(NewMessage(t, 0, args))
	if err != nil {
		return 0, nil, err
	}
	if resp.Header.Type != t.Response() {
		return 0, nil, fmt.Errorf("unexpected response type: %s", resp.Header.Type)
	}
	return DecodeResult(resp.Payload)
}

// Ping checks that the daemon answers.
func (c *Client) Ping() error {
	resp, err := c.roundTrip(NewMessage(MsgPing, 0, nil))
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response type: %s", resp.Header.Type)
	}
	return nil
}

// Status returns the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var st StatusResponse
	if err := c.requestJSON(MsgStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Recenter recenters the engine.
func (c *Client) Recenter() error {
	return c.requestJSON(MsgRecenter, nil, nil)
}

// TogglePause pauses or resumes tracking and returns the new mode.
func (c *Client) TogglePause() (string, error) {
	var resp ToggleResponse
	if err := c.requestJSON(MsgTogglePause, nil, &resp); err != nil {
		return "", err
	}
	return resp.Mode, nil
}

// History returns recent journal entries.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.requestJSON(MsgHistory, &HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReloadApps makes the daemon re-read the application database.
func (c *Client) ReloadApps() (int, error) {
	var resp ReloadResponse
	if err := c.requestJSON(MsgReloadApps, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Entries, nil
}

// Metrics returns the daemon's metrics export in format ("prometheus" or
// "json").
func (c *Client) Metrics(format string) (string, error) {
	req, err := NewJSONMessage(MsgMetrics, 0, &MetricsRequest{Format: format})
	if err != nil {
		return "", err
	}
	resp, err := c.roundTrip(req)
	if err != nil {
		return "", err
	}
	if resp.Header.Type != MsgMetrics.Response() {
		return "", fmt.Errorf("unexpected response type: %s", resp.Header.Type)
	}
	return string(resp.Payload), nil
}

// GetSignature performs NP_GetSignature.
func (c *Client) GetSignature() (npclient.Signature, error) {
	var sig npclient.Signature
	_, body, err := c.hostCall(MsgNPGetSignature, nil)
	if err != nil {
		return sig, err
	}
	return sig, sig.UnmarshalBinary(body)
}

// QueryVersion performs NP_QueryVersion.
func (c *Client) QueryVersion() (uint16, error) {
	_, body, err := c.hostCall(MsgNPQueryVersion, nil)
	if err != nil {
		return 0, err
	}
	v, err := Int16(body)
	return uint16(v), err
}

// RegisterProgramProfileID performs NP_RegisterProgramProfileID and
// returns the host result code.
func (c *Client) RegisterProgramProfileID(id int16) (int32, error) {
	code, _, err := c.hostCall(MsgNPRegisterProgramProfileID, PutInt16(id))
	return code, err
}

// GetData performs NP_GetData.
func (c *Client) GetData() (npclient.Data, error) {
	var d npclient.Data
	_, body, err := c.hostCall(MsgNPGetData, nil)
	if err != nil {
		return d, err
	}
	return d, d.UnmarshalBinary(body)
}

// StartDataTransmission performs NP_StartDataTransmission. It returns
// after the daemon's settle delay.
func (c *Client) StartDataTransmission() (int32, error) {
	code, _, err := c.hostCall(MsgNPStartDataTransmission, nil)
	return code, err
}

// StopDataTransmission performs NP_StopDataTransmission.
func (c *Client) StopDataTransmission() (int32, error) {
	code, _, err := c.hostCall(MsgNPStopDataTransmission, nil)
	return code, err
}

// HostCall performs any host call with raw arguments.
func (c *Client) HostCall(t MessageType, args []byte) (int32, []byte, error) {
	if !t.IsHostCall() || t.IsResponse() {
		return 0, nil, fmt.Errorf("%s is not a host call", t)
	}
	return c.hostCall(t, args)
}
