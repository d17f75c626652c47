package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"ltrnp/internal/logging"
	"ltrnp/internal/metrics"
)

// Handler answers every message the server does not handle itself (ping,
// pong, handshake). A nil response sends nothing back.
type Handler interface {
	HandleMessage(ctx context.Context, peer *Peer, msg *Message) (*Message, error)
}

// Peer is one connected client as seen by the server.
type Peer struct {
	ID          string
	PID         int
	ConnectedAt time.Time

	conn    net.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	name    string
	version string
}

// Name returns the client name sent in the handshake.
func (p *Peer) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// ServerConfig configures a Server.
type ServerConfig struct {
	SocketPath string
	Version    string

	// ReadTimeout is the idle time after which the server pings a
	// client. Zero disables pings.
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int

	// AllowOtherUIDs accepts peers running as a different user.
	AllowOtherUIDs bool

	Logger  *logging.Logger
	Metrics *metrics.BridgeMetrics
}

const (
	defaultMaxConnections = 8
	defaultWriteTimeout   = 10 * time.Second
	stopGrace             = 5 * time.Second
)

// DefaultServerConfig returns a configuration for socketPath.
func DefaultServerConfig(socketPath string) ServerConfig {
	return ServerConfig{
		SocketPath:     socketPath,
		Version:        "dev",
		WriteTimeout:   defaultWriteTimeout,
		MaxConnections: defaultMaxConnections,
	}
}

// Server accepts bridge connections on a unix socket and runs one
// goroutine per peer.
type Server struct {
	cfg     ServerConfig
	handler Handler
	log     *logging.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  atomic.Bool

	mu    sync.RWMutex
	peers map[string]*Peer

	pingID atomic.Uint32
	peerID atomic.Uint64
}

// NewServer validates cfg. Nothing is opened until Start.
func NewServer(cfg ServerConfig, handler Handler) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     log.WithComponent("ipc"),
		ctx:     ctx,
		cancel:  cancel,
		peers:   make(map[string]*Peer),
	}, nil
}

// Start claims the socket and begins accepting. It refuses to take over a
// socket another process is still answering on.
func (s *Server) Start() error {
	ln, err := listenUnix(s.cfg.SocketPath)
	if err != nil {
		return err
	}
	s.listener = ln
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("bridge listening", "socket", s.cfg.SocketPath)
	return nil
}

// Stop closes the listener and every connection, waits for the peer
// goroutines and removes the socket file. It is idempotent.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	for _, p := range s.peers {
		p.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.log.Warn("bridge connections did not finish in time")
	}

	os.Remove(s.cfg.SocketPath)
	s.log.Info("bridge stopped")
	return nil
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// ClientCount returns the number of connected peers.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		peer, err := s.admit(conn)
		if err != nil {
			s.log.Warn("rejecting client", "error", err)
			conn.Close()
			continue
		}
		s.log.Debug("client connected", "client", peer.ID, "pid", peer.PID)

		s.wg.Add(1)
		go s.serve(peer)
	}
}

// admit checks the peer's user and the connection limit and registers it.
func (s *Server) admit(conn net.Conn) (*Peer, error) {
	cred, err := peerCredentials(conn)
	if err != nil && !errors.Is(err, errNoPeerCredentials) {
		return nil, fmt.Errorf("peer credentials: %w", err)
	}
	if cred != nil && cred.uid != os.Getuid() && !s.cfg.AllowOtherUIDs {
		return nil, fmt.Errorf("uid %d (pid %d) is another user", cred.uid, cred.pid)
	}

	peer := &Peer{
		ID:          fmt.Sprintf("client-%d", s.peerID.Add(1)),
		ConnectedAt: time.Now(),
		conn:        conn,
	}
	if cred != nil {
		peer.PID = cred.pid
	}

	s.mu.Lock()
	if len(s.peers) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		return nil, fmt.Errorf("connection limit %d reached", s.cfg.MaxConnections)
	}
	s.peers[peer.ID] = peer
	n := len(s.peers)
	s.mu.Unlock()

	s.setClientGauge(n)
	return peer, nil
}

func (s *Server) drop(peer *Peer) {
	s.mu.Lock()
	delete(s.peers, peer.ID)
	n := len(s.peers)
	s.mu.Unlock()

	s.setClientGauge(n)
	peer.conn.Close()
	s.log.Debug("client disconnected", "client", peer.ID)
}

func (s *Server) setClientGauge(n int) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.BridgeClients.Set(int64(n))
	}
}

// serve reads requests from one peer until it disconnects or the server
// stops. Requests from a peer are answered in order.
func (s *Server) serve(peer *Peer) {
	defer s.wg.Done()
	defer s.drop(peer)

	for s.ctx.Err() == nil {
		if s.cfg.ReadTimeout > 0 {
			peer.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		msg, err := ReadMessage(peer.conn)
		if err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.As(err, &ne) && ne.Timeout():
				s.send(peer, NewMessage(MsgPing, s.pingID.Add(1), nil))
				continue
			default:
				s.log.Debug("read failed", "client", peer.ID, "error", err)
			}
			return
		}

		if s.cfg.Metrics != nil {
			s.cfg.Metrics.BridgeRequests.Inc()
		}

		resp, err := s.dispatch(peer, msg)
		if err != nil {
			resp = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if resp != nil {
			if err := s.send(peer, resp); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(peer *Peer, msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, id, nil), nil
	case MsgPong:
		return nil, nil
	case MsgHandshake:
		var req HandshakeRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(id, ErrInvalidRequest, "invalid handshake"), nil
		}
		peer.mu.Lock()
		peer.name, peer.version = req.ClientName, req.ClientVersion
		peer.mu.Unlock()
		s.log.Debug("handshake", "client", peer.ID, "name", req.ClientName, "version", req.ClientVersion)

		return NewJSONMessage(MsgHandshakeAck, id, &HandshakeResponse{
			ServerVersion:   s.cfg.Version,
			ProtocolVersion: ProtocolVersion,
			SessionID:       peer.ID,
		})
	}
	if s.handler == nil {
		return NewErrorMessage(id, ErrInvalidRequest, "no handler"), nil
	}
	return s.handler.HandleMessage(s.ctx, peer, msg)
}

func (s *Server) send(peer *Peer, msg *Message) error {
	peer.writeMu.Lock()
	defer peer.writeMu.Unlock()

	peer.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return msg.Write(peer.conn)
}
