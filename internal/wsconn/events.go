package wsconn

import (
	"github.com/brannigan/iocore/internal/ioloop"
	"github.com/brannigan/iocore/internal/wsproto"
)

// WebSocketNewConnectionEvent is delivered to a server's configured
// handler thread once a client's handshake succeeds. The handler is
// responsible for calling Client.StartReadingMessages to begin
// receiving WebSocketMessageEvent values from it.
type WebSocketNewConnectionEvent struct {
	ioloop.EventBase
	Client *Client
}

// WebSocketMessageEvent carries one fully reassembled TEXT or BINARY
// message, a received PING or PONG (the default handler answers a
// PING with a PONG itself), or a CLOSE notification (Opcode ==
// wsproto.OpClose) that the default handler is about to reply to and
// tear the connection down over.
type WebSocketMessageEvent struct {
	ioloop.EventBase
	Client  *Client
	Opcode  wsproto.Opcode
	Payload []byte
}

// WebSocketErrorEvent reports a protocol violation or a failed socket
// operation, either of which terminates the connection, or an
// outgoing frame that could not be encoded, which does not.
type WebSocketErrorEvent struct {
	ioloop.EventBase
	Client *Client
	Code   wsproto.CloseCode
	Err    error
}

// WebSocketDisconnectedEvent is delivered exactly once per connection
// that completed its handshake, whether termination was clean,
// peer-initiated, or due to a protocol error. A connection whose
// handshake fails never produces one.
type WebSocketDisconnectedEvent struct {
	ioloop.EventBase
	Client *Client
}
