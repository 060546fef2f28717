// Package wsconn implements the WebSocket connection lifecycle: the
// handshake, the masked/unmasked frame exchange, and the default
// control-frame responder. One Client models everything the original
// split across three sequenced Event Threads (handshake, message
// reader, termination); here a single Thread moves through those
// phases internally, since Go's garbage collector removes the reason
// the original needed separate heap objects to hand off ownership
// between stages.
package wsconn

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/brannigan/iocore/internal/ioloop"
	"github.com/brannigan/iocore/internal/wsproto"
)

// Role distinguishes which side of the handshake a Client plays, which
// in turn decides masking direction for outgoing frames and the
// expected masking direction for incoming ones.
type Role int

const (
	// RoleServer accepted an inbound connection: it does not mask
	// outgoing frames and requires masked incoming ones.
	RoleServer Role = iota
	// RoleClient dialed out: it masks outgoing frames and requires
	// unmasked incoming ones.
	RoleClient
)

type clientPhase int

const (
	phaseHandshake clientPhase = iota
	phaseAwaitingHandler
	phaseReading
	phaseDone
)

// Config bundles the per-connection limits and (for a client-role
// connection) dial target, mirroring ServerConfig/ClientConfig's
// shared fields.
type Config struct {
	MaxHandshakeSize uint64
	MaxMessageSize   uint64

	// Client role only.
	Host, Path string
	Port       int

	// Server role only; nil disables the handshake auth gate.
	Authenticator HandshakeAuthenticator
}

// Client is one WebSocket connection's Event Thread.
type Client struct {
	ioloop.Base

	ID string

	role   Role
	socket ioloop.EventSocket
	cfg    Config

	handler  ioloop.ThreadRef
	onForget func()

	phase clientPhase
	buf   []byte

	expectedAccept string
	pendingExtra   []byte

	parser      *wsproto.FrameParser
	reassembler *wsproto.Reassembler
}

// NewServerClient constructs a Client for an accepted connection.
// handler receives the WebSocketNewConnectionEvent once the handshake
// succeeds; onForget (may be nil) is invoked once the connection
// terminates so an owning server can drop it from its client set.
func NewServerClient(loop *ioloop.Loop, socket ioloop.EventSocket, cfg Config, handler ioloop.ThreadRef, onForget func()) *Client {
	c := &Client{ID: uuid.NewString(), role: RoleServer, socket: socket, cfg: cfg, handler: handler, onForget: onForget}
	c.Base = ioloop.NewBase(loop)
	loop.StartThread(c)
	return c
}

// NewDialingClient constructs a Client that will perform the
// client-role handshake against cfg.Host/Port/Path once started.
// handler receives WebSocketMessageEvent/WebSocketErrorEvent/
// WebSocketDisconnectedEvent for the lifetime of the connection.
func NewDialingClient(loop *ioloop.Loop, socket ioloop.EventSocket, cfg Config, handler ioloop.ThreadRef) *Client {
	c := &Client{ID: uuid.NewString(), role: RoleClient, socket: socket, cfg: cfg, handler: handler}
	c.Base = ioloop.NewBase(loop)
	loop.StartThread(c)
	return c
}

// StartReadingMessages begins the message-reading phase for a
// server-role client that has just announced itself via
// WebSocketNewConnectionEvent. Calling it more than once, or on a
// client-role connection, has no effect.
func (c *Client) StartReadingMessages(handler ioloop.ThreadRef) {
	if c.phase != phaseAwaitingHandler {
		return
	}
	c.handler = handler
	c.beginReading(c.pendingExtra)
	c.pendingExtra = nil
}

func (c *Client) Handle(event ioloop.Event) error {
	switch ev := event.(type) {
	case ioloop.StartEvent:
		return c.onStart()
	case ioloop.ReadEvent:
		return c.onRead(ev.Bytes)
	case ioloop.WriteEvent:
		return nil
	case ioloop.ErrorEvent:
		return c.onSocketError(ev.Err)
	default:
		return nil
	}
}

func (c *Client) onStart() error {
	if c.role == RoleClient {
		return c.startClientHandshake()
	}
	c.socket.Read(c.Self())
	return nil
}

func (c *Client) onSocketError(err error) error {
	c.notify(WebSocketErrorEvent{Client: c, Code: wsproto.CloseInternalError, Err: err})
	c.terminate()
	return nil
}

func (c *Client) onRead(data []byte) error {
	if len(data) == 0 {
		c.terminate()
		return nil
	}
	switch c.phase {
	case phaseHandshake:
		return c.onHandshakeBytes(data)
	case phaseReading:
		return c.onMessageBytes(data)
	default:
		return nil
	}
}

// --- handshake phase ---

func (c *Client) startClientHandshake() error {
	key, err := generateKey()
	if err != nil {
		return err
	}
	c.expectedAccept = computeAccept(key)
	req := buildClientRequest(c.cfg.Host, c.cfg.Port, c.cfg.Path, key)
	c.socket.Write(c.Self(), req)
	c.socket.Read(c.Self())
	return nil
}

func (c *Client) onHandshakeBytes(data []byte) error {
	c.buf = append(c.buf, data...)
	if uint64(len(c.buf)) > c.cfg.MaxHandshakeSize {
		c.failHandshake("handshake request exceeds the configured maximum size")
		return nil
	}
	if c.role == RoleServer {
		c.tryCompleteServerHandshake()
	} else {
		c.tryCompleteClientHandshake()
	}
	return nil
}

func (c *Client) tryCompleteServerHandshake() {
	head, consumed, ok := parseHead(c.buf)
	if !ok {
		c.socket.Read(c.Self())
		return
	}
	if upgrade := head.header("upgrade"); upgrade != "websocket" {
		c.rejectHandshake("400 Invalid", "missing or invalid upgrade header")
		return
	}
	key := head.header("sec-websocket-key")
	if key == "" {
		c.rejectHandshake("400 Invalid", "missing sec-websocket-key header")
		return
	}
	if c.cfg.Authenticator != nil {
		if err := c.cfg.Authenticator.Authenticate(head.headers); err != nil {
			c.rejectHandshake("401 Unauthorized", err.Error())
			return
		}
	}

	accept := computeAccept(key)
	c.socket.Write(c.Self(), buildServerSuccessResponse(accept))

	extra := append([]byte(nil), c.buf[consumed:]...)
	c.buf = nil
	c.phase = phaseAwaitingHandler
	c.pendingExtra = extra
	c.notify(WebSocketNewConnectionEvent{Client: c})
}

func (c *Client) tryCompleteClientHandshake() {
	head, consumed, ok := parseHead(c.buf)
	if !ok {
		c.socket.Read(c.Self())
		return
	}
	if head.statusCode != 101 {
		c.failHandshake(fmt.Sprintf("server responded with status %d instead of 101", head.statusCode))
		return
	}
	if head.header("sec-websocket-accept") != c.expectedAccept {
		c.failHandshake("server returned an unexpected sec-websocket-accept value")
		return
	}
	extra := append([]byte(nil), c.buf[consumed:]...)
	c.buf = nil
	c.beginReading(extra)
}

func (c *Client) rejectHandshake(statusLine, reason string) {
	c.socket.Write(c.Self(), buildErrorResponse(statusLine, reason))
	c.terminateSilently()
}

func (c *Client) failHandshake(reason string) {
	if c.role == RoleServer {
		c.rejectHandshake("400 Invalid", reason)
		return
	}
	c.terminateSilently()
}

// --- message-reading phase ---

func (c *Client) beginReading(extra []byte) {
	c.phase = phaseReading
	c.parser = wsproto.NewFrameParser(c.role == RoleServer)
	c.reassembler = wsproto.NewReassembler(c.cfg.MaxMessageSize)
	if len(extra) > 0 {
		if err := c.consumeFrames(extra); err != nil {
			c.failProtocol(err)
			return
		}
	}
	if c.phase == phaseReading {
		c.socket.Read(c.Self())
	}
}

func (c *Client) onMessageBytes(data []byte) error {
	if err := c.consumeFrames(data); err != nil {
		c.failProtocol(err)
		return nil
	}
	if c.phase == phaseReading {
		c.socket.Read(c.Self())
	}
	return nil
}

func (c *Client) consumeFrames(data []byte) error {
	frames, err := c.parser.Feed(data)
	for _, f := range frames {
		if herr := c.handleFrame(f); herr != nil {
			return herr
		}
		if c.phase != phaseReading {
			return nil
		}
	}
	return err
}

func (c *Client) handleFrame(f wsproto.Frame) error {
	if f.Opcode.IsControl() {
		return c.handleControlFrame(f)
	}
	msg, ok, err := c.reassembler.Feed(f)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	c.notify(WebSocketMessageEvent{Client: c, Opcode: msg.Opcode, Payload: msg.Payload})
	return nil
}

func (c *Client) handleControlFrame(f wsproto.Frame) error {
	switch f.Opcode {
	case wsproto.OpPing:
		c.notify(WebSocketMessageEvent{Client: c, Opcode: f.Opcode, Payload: f.Payload})
		c.writeFrame(wsproto.OpPong, f.Payload)
	case wsproto.OpPong:
		c.notify(WebSocketMessageEvent{Client: c, Opcode: f.Opcode, Payload: f.Payload})
	case wsproto.OpClose:
		reply := defaultCloseReply(f.Payload)
		c.notify(WebSocketMessageEvent{Client: c, Opcode: wsproto.OpClose, Payload: f.Payload})
		c.WriteClose(reply, nil)
		c.terminate()
	}
	return nil
}

// defaultCloseReply implements §4.7's default close handler: no
// payload replies 1000, a single stray byte replies 1002, otherwise
// the code is validated and the reason bytes must be UTF-8.
func defaultCloseReply(payload []byte) wsproto.CloseCode {
	switch {
	case len(payload) == 0:
		return wsproto.CloseNormal
	case len(payload) == 1:
		return wsproto.CloseProtocolError
	default:
		code := wsproto.CloseCode(binary.BigEndian.Uint16(payload[:2]))
		if !code.ValidToReceive() {
			return wsproto.CloseProtocolError
		}
		if !utf8.Valid(payload[2:]) {
			return wsproto.CloseInvalidPayloadUTF8
		}
		return wsproto.CloseNormal
	}
}

func (c *Client) failProtocol(err error) {
	code := wsproto.CloseProtocolError
	var pe *wsproto.ProtocolError
	if errors.As(err, &pe) {
		code = pe.Code
	}
	c.notify(WebSocketErrorEvent{Client: c, Code: code, Err: err})
	c.WriteClose(code, nil)
	c.terminate()
}

// --- outgoing writes ---

// writeFrame funnels every outgoing frame type through one path: it
// masks when this side initiated the connection (RoleClient), and
// dispatches the header and payload as two ordered writes on the same
// socket so framing can never interleave with another write.
func (c *Client) writeFrame(opcode wsproto.Opcode, payload []byte) {
	header, body, err := wsproto.EncodeFrame(opcode, payload, c.role == RoleClient)
	if err != nil {
		c.notify(WebSocketErrorEvent{Client: c, Code: wsproto.CloseInternalError, Err: err})
		return
	}
	c.socket.Write(c.Self(), header)
	c.socket.Write(c.Self(), body)
}

func (c *Client) WriteText(payload []byte)   { c.writeFrame(wsproto.OpText, payload) }
func (c *Client) WriteBinary(payload []byte) { c.writeFrame(wsproto.OpBinary, payload) }
func (c *Client) WritePing(payload []byte)   { c.writeFrame(wsproto.OpPing, payload) }
func (c *Client) WritePong(payload []byte)   { c.writeFrame(wsproto.OpPong, payload) }

func (c *Client) WriteClose(code wsproto.CloseCode, reason []byte) {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	c.writeFrame(wsproto.OpClose, payload)
}

// --- termination ---

func (c *Client) notify(event ioloop.Event) {
	if !c.handler.Valid() {
		return
	}
	if err := c.Base.Send(event, c.handler); err != nil {
		// Administrative post failures are logged, not fatal, per
		// the error taxonomy; the loop itself already logs them.
		_ = err
	}
}

// terminateSilently is used for handshake failures, which suppress
// WebSocketNewConnectionEvent/WebSocketDisconnectedEvent entirely.
func (c *Client) terminateSilently() {
	if c.phase == phaseDone {
		return
	}
	c.phase = phaseDone
	_ = c.socket.Close()
	c.Base.Stop()
	if c.onForget != nil {
		c.onForget()
	}
}

func (c *Client) terminate() {
	if c.phase == phaseDone {
		return
	}
	wasAnnounced := c.phase == phaseReading || c.phase == phaseAwaitingHandler
	c.phase = phaseDone
	_ = c.socket.Close()
	c.Base.Stop()
	if wasAnnounced {
		c.notify(WebSocketDisconnectedEvent{Client: c})
	}
	if c.onForget != nil {
		c.onForget()
	}
}
