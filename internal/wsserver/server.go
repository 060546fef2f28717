package wsserver

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/brannigan/iocore/internal/ioloop"
	"github.com/brannigan/iocore/internal/wsconn"
)

// Config is the WebSocket server's ServerConfig, per §6: it carries
// the listen address and the per-connection limits every accepted
// Client inherits.
type Config struct {
	Host string
	Port int

	MaxHandshakeSize uint64
	MaxMessageSize   uint64

	Authenticator wsconn.HandshakeAuthenticator

	// AcceptLimiter, if set, is consulted once per accepted raw
	// connection; a connection it rejects is closed before a Client is
	// ever constructed for it.
	AcceptLimiter *rate.Limiter
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.MaxHandshakeSize == 0 {
		c.MaxHandshakeSize = 1024
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 64 * 1024 * 1024
	}
	return c
}

// Server is the Accept thread described in §4.8: it owns the
// listening socket, fans accepted connections out across a loop pool,
// and keeps a mutex-protected set of the clients currently connected.
type Server struct {
	ioloop.Base

	cfg      Config
	listener ioloop.EventSocket
	pool     *ioloop.ThreadedEventLoop
	handler  ioloop.ThreadRef
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*wsconn.Client]struct{}
}

// Start opens cfg's listening socket on acceptLoop and begins
// accepting. handler receives a wsconn.WebSocketNewConnectionEvent for
// every client that completes its handshake; pool is where accepted
// connections are placed via Next(), which may or may not be
// acceptLoop's own pool.
func Start(pool *ioloop.ThreadedEventLoop, acceptLoop *ioloop.Loop, cfg Config, handler ioloop.ThreadRef, log *slog.Logger) (*Server, error) {
	cfg = cfg.withDefaults()

	raw, err := ioloop.OpenTCPSocket()
	if err != nil {
		return nil, fmt.Errorf("wsserver: open listen socket: %w", err)
	}
	if err := raw.Bind(cfg.Host, cfg.Port); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("wsserver: bind %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if err := raw.Listen(128); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("wsserver: listen: %w", err)
	}

	listener, err := acceptLoop.RegisterSocket(raw)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("wsserver: register listen socket: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		listener: listener,
		pool:     pool,
		handler:  handler,
		log:      log,
		clients:  make(map[*wsconn.Client]struct{}),
	}
	s.Base = ioloop.NewBase(acceptLoop)
	acceptLoop.StartThread(s)
	return s, nil
}

func (s *Server) Handle(event ioloop.Event) error {
	switch ev := event.(type) {
	case ioloop.StartEvent:
		s.listener.Accept(s.Self())
	case ioloop.AcceptEvent:
		s.onAccept(ev.Socket)
		s.listener.Accept(s.Self())
	case ioloop.ErrorEvent:
		s.log.Error("accept failed", "error", ev.Err)
		s.listener.Accept(s.Self())
	}
	return nil
}

func (s *Server) onAccept(raw ioloop.RawSocket) {
	if s.cfg.AcceptLimiter != nil && !s.cfg.AcceptLimiter.Allow() {
		_ = raw.Close()
		return
	}

	loop := s.pool.Next()
	sock, err := loop.RegisterSocket(raw)
	if err != nil {
		s.log.Error("register accepted socket", "error", err)
		_ = raw.Close()
		return
	}

	ccfg := wsconn.Config{
		MaxHandshakeSize: s.cfg.MaxHandshakeSize,
		MaxMessageSize:   s.cfg.MaxMessageSize,
		Authenticator:    s.cfg.Authenticator,
	}

	var client *wsconn.Client
	client = wsconn.NewServerClient(loop, sock, ccfg, s.handler, func() { s.forget(client) })

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) forget(c *wsconn.Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// ClientCount reports how many clients are currently connected, for
// the admin HTTP /stats surface.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Stop closes the listening socket and removes the Accept thread from
// its loop. Already-accepted clients are unaffected; they terminate
// independently as their own connections close.
func (s *Server) Stop() {
	_ = s.listener.Close()
	s.Base.Stop()
}
