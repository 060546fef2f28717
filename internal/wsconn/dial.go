package wsconn

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/brannigan/iocore/internal/ioloop"
)

// Dial opens a raw TCP connection to target (a ws:// URL), registers
// it on loop, and starts a Client in the client handshake role. handler
// receives WebSocketMessageEvent/WebSocketErrorEvent/
// WebSocketDisconnectedEvent once the handshake completes.
func Dial(loop *ioloop.Loop, target string, maxHandshakeSize, maxMessageSize uint64, handler ioloop.ThreadRef) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("wsconn: parse url %q: %w", target, err)
	}
	if u.Scheme != "ws" {
		return nil, fmt.Errorf("wsconn: unsupported scheme %q (only ws:// is supported)", u.Scheme)
	}

	host := u.Hostname()
	port := 80
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("wsconn: invalid port in %q: %w", target, err)
		}
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	raw, err := ioloop.OpenTCPSocket()
	if err != nil {
		return nil, fmt.Errorf("wsconn: open socket: %w", err)
	}
	if err := raw.Connect(host, port); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("wsconn: connect to %s:%d: %w", host, port, err)
	}

	sock, err := loop.RegisterSocket(raw)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("wsconn: register socket: %w", err)
	}

	cfg := Config{
		MaxHandshakeSize: maxHandshakeSize,
		MaxMessageSize:   maxMessageSize,
		Host:             host,
		Port:             port,
		Path:             path,
	}
	return NewDialingClient(loop, sock, cfg, handler), nil
}
