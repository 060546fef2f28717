package wsconn_test

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brannigan/iocore/internal/ioloop"
	"github.com/brannigan/iocore/internal/wsconn"
	"github.com/brannigan/iocore/internal/wsproto"
	"github.com/brannigan/iocore/internal/wsserver"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

type recordedEvent struct {
	kind    string
	opcode  wsproto.Opcode
	payload []byte
}

// recorder is the handler thread every test in this file attaches to
// the server; it turns wsconn's events into an ordered channel so
// assertions can check both content and arrival order (E4 cares about
// order: PING before the reassembled TEXT).
type recorder struct {
	ioloop.Base
	events chan recordedEvent
}

func newRecorder() *recorder {
	return &recorder{events: make(chan recordedEvent, 16)}
}

func (r *recorder) Handle(event ioloop.Event) error {
	switch ev := event.(type) {
	case wsconn.WebSocketNewConnectionEvent:
		ev.Client.StartReadingMessages(r.Self())
		r.events <- recordedEvent{kind: "connected"}
	case wsconn.WebSocketMessageEvent:
		r.events <- recordedEvent{kind: "message", opcode: ev.Opcode, payload: ev.Payload}
	case wsconn.WebSocketErrorEvent:
		r.events <- recordedEvent{kind: "error", opcode: -1, payload: []byte(ev.Err.Error())}
	case wsconn.WebSocketDisconnectedEvent:
		r.events <- recordedEvent{kind: "disconnected"}
	}
	return nil
}

func (r *recorder) expect(t *testing.T, kind string) recordedEvent {
	t.Helper()
	select {
	case ev := <-r.events:
		require.Equal(t, kind, ev.kind, "unexpected event: %+v", ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q event", kind)
		return recordedEvent{}
	}
}

func startServer(t *testing.T, port int) (*ioloop.ThreadedEventLoop, *recorder) {
	t.Helper()
	pool, err := ioloop.NewThreadedEventLoop(1, discardLogger())
	require.NoError(t, err)
	go func() { _ = pool.Run() }()
	t.Cleanup(pool.Stop)

	rec := newRecorder()
	handlerRef := pool.Loops()[0].StartThread(rec)

	_, err = wsserver.Start(pool, pool.Loops()[0], wsserver.Config{Host: "127.0.0.1", Port: port}, handlerRef, discardLogger())
	require.NoError(t, err)

	return pool, rec
}

// buildRawFrame hand-builds a masked client-to-server frame with an
// explicit FIN bit, independent of wsproto.EncodeFrame (which always
// sets FIN), so tests can drive fragmentation and control-frame
// interleaving the way a real client would on the wire.
func buildRawFrame(fin bool, opcode wsproto.Opcode, payload []byte) []byte {
	if len(payload) > 125 {
		panic("buildRawFrame: test helper only supports small payloads")
	}
	first := byte(opcode)
	if fin {
		first |= 0x80
	}
	mask := [4]byte{0x11, 0x22, 0x33, 0x44}
	frame := make([]byte, 0, 2+4+len(payload))
	frame = append(frame, first, byte(len(payload))|0x80)
	frame = append(frame, mask[:]...)
	for i, b := range payload {
		frame = append(frame, b^mask[i%4])
	}
	return frame
}

func rawHandshakeRequest(path string) []byte {
	return []byte(fmt.Sprintf(
		"GET %s HTTP/1.1\r\n"+
			"Host: 127.0.0.1\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n"+
			"Sec-WebSocket-Version: 13\r\n"+
			"\r\n", path))
}

func dialRawClient(t *testing.T, port int) ioloop.RawSocket {
	t.Helper()
	raw, err := ioloop.OpenTCPSocket()
	require.NoError(t, err)
	require.NoError(t, raw.Connect("127.0.0.1", port))
	t.Cleanup(func() { _ = raw.Close() })

	_, err = raw.Write(rawHandshakeRequest("/"))
	require.NoError(t, err)
	// Give the server time to process the handshake; the response
	// bytes themselves aren't needed since the connection stays open
	// across the upgrade regardless of whether a test reads them.
	time.Sleep(50 * time.Millisecond)
	return raw
}

// E3: fragmented TEXT. {FIN=0,TEXT,"Hel"}, {FIN=0,CONTINUATION,"lo wo"},
// {FIN=1,CONTINUATION,"rld"} must reassemble into one TEXT "Hello world".
func TestServerReassemblesFragmentedTextMessage(t *testing.T) {
	_, rec := startServer(t, 18401)
	raw := dialRawClient(t, 18401)

	rec.expect(t, "connected")

	for _, frame := range [][]byte{
		buildRawFrame(false, wsproto.OpText, []byte("Hel")),
		buildRawFrame(false, wsproto.OpContinuation, []byte("lo wo")),
		buildRawFrame(true, wsproto.OpContinuation, []byte("rld")),
	} {
		_, err := raw.Write(frame)
		require.NoError(t, err)
	}

	msg := rec.expect(t, "message")
	require.Equal(t, wsproto.OpText, msg.opcode)
	require.Equal(t, "Hello world", string(msg.payload))
}

// E4: a complete control frame (PING) arriving mid-fragmentation must
// be delivered to the handler immediately, before the data message it
// interrupted finishes reassembling.
func TestServerForwardsPingBeforeFragmentedMessageCompletes(t *testing.T) {
	_, rec := startServer(t, 18402)
	raw := dialRawClient(t, 18402)

	rec.expect(t, "connected")

	for _, frame := range [][]byte{
		buildRawFrame(false, wsproto.OpText, []byte("abc")),
		buildRawFrame(true, wsproto.OpPing, []byte("x")),
		buildRawFrame(true, wsproto.OpContinuation, []byte("def")),
	} {
		_, err := raw.Write(frame)
		require.NoError(t, err)
	}

	ping := rec.expect(t, "message")
	require.Equal(t, wsproto.OpPing, ping.opcode)
	require.Equal(t, "x", string(ping.payload))

	text := rec.expect(t, "message")
	require.Equal(t, wsproto.OpText, text.opcode)
	require.Equal(t, "abcdef", string(text.payload))
}

// E2: a large (>65535 byte) payload must round-trip through the
// 64-bit extended length encoding.
func TestClientRoundTripsLargeBinaryPayload(t *testing.T) {
	pool, err := ioloop.NewThreadedEventLoop(1, discardLogger())
	require.NoError(t, err)
	go func() { _ = pool.Run() }()
	t.Cleanup(pool.Stop)

	echoHandlerRef := pool.Loops()[0].StartThread(&echoingRecorder{})
	_, err = wsserver.Start(pool, pool.Loops()[0], wsserver.Config{Host: "127.0.0.1", Port: 18403}, echoHandlerRef, discardLogger())
	require.NoError(t, err)

	clientLoop, err := ioloop.NewLoop(discardLogger())
	require.NoError(t, err)
	go func() { _ = clientLoop.Run() }()
	t.Cleanup(clientLoop.Stop)

	obs := newRecorder()
	obsRef := clientLoop.StartThread(obs)

	client, err := wsconn.Dial(clientLoop, "ws://127.0.0.1:18403/", 1024, 200000, obsRef)
	require.NoError(t, err)

	payload := make([]byte, 100000)
	time.Sleep(50 * time.Millisecond)
	client.WriteBinary(payload)

	msg := obs.expect(t, "message")
	require.Equal(t, wsproto.OpBinary, msg.opcode)
	require.Len(t, msg.payload, len(payload))
}

type echoingRecorder struct{ ioloop.Base }

func (h *echoingRecorder) Handle(event ioloop.Event) error {
	switch ev := event.(type) {
	case wsconn.WebSocketNewConnectionEvent:
		ev.Client.StartReadingMessages(h.Self())
	case wsconn.WebSocketMessageEvent:
		if ev.Opcode == wsproto.OpBinary {
			ev.Client.WriteBinary(ev.Payload)
		}
	}
	return nil
}

// E5: TEXT carrying invalid UTF-8 must be rejected with close code
// 1007 and the connection torn down.
func TestServerRejectsInvalidUTF8TextWithClose1007(t *testing.T) {
	pool, err := ioloop.NewThreadedEventLoop(1, discardLogger())
	require.NoError(t, err)
	go func() { _ = pool.Run() }()
	t.Cleanup(pool.Stop)

	echoHandlerRef := pool.Loops()[0].StartThread(&echoingRecorder{})
	_, err = wsserver.Start(pool, pool.Loops()[0], wsserver.Config{Host: "127.0.0.1", Port: 18404}, echoHandlerRef, discardLogger())
	require.NoError(t, err)

	clientLoop, err := ioloop.NewLoop(discardLogger())
	require.NoError(t, err)
	go func() { _ = clientLoop.Run() }()
	t.Cleanup(clientLoop.Stop)

	obs := newRecorder()
	obsRef := clientLoop.StartThread(obs)

	client, err := wsconn.Dial(clientLoop, "ws://127.0.0.1:18404/", 1024, 65536, obsRef)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	// writeFrame performs no UTF-8 validation on send, only on
	// receipt, so this reaches the server wire verbatim.
	client.WriteText([]byte{0xC0, 0xAF})

	msg := obs.expect(t, "message")
	require.Equal(t, wsproto.OpClose, msg.opcode)
	require.GreaterOrEqual(t, len(msg.payload), 2)
	code := wsproto.CloseCode(uint16(msg.payload[0])<<8 | uint16(msg.payload[1]))
	require.Equal(t, wsproto.CloseInvalidPayloadUTF8, code)

	obs.expect(t, "disconnected")
}

// E6: a peer-initiated CLOSE(1000) must be answered with CLOSE(1000),
// after which the dialing client observes a clean Disconnected
// termination.
func TestServerAcknowledgesPeerCloseAndFiresDisconnected(t *testing.T) {
	pool, err := ioloop.NewThreadedEventLoop(1, discardLogger())
	require.NoError(t, err)
	go func() { _ = pool.Run() }()
	t.Cleanup(pool.Stop)

	echoHandlerRef := pool.Loops()[0].StartThread(&echoingRecorder{})
	_, err = wsserver.Start(pool, pool.Loops()[0], wsserver.Config{Host: "127.0.0.1", Port: 18405}, echoHandlerRef, discardLogger())
	require.NoError(t, err)

	clientLoop, err := ioloop.NewLoop(discardLogger())
	require.NoError(t, err)
	go func() { _ = clientLoop.Run() }()
	t.Cleanup(clientLoop.Stop)

	obs := newRecorder()
	obsRef := clientLoop.StartThread(obs)

	client, err := wsconn.Dial(clientLoop, "ws://127.0.0.1:18405/", 1024, 65536, obsRef)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	client.WriteClose(wsproto.CloseNormal, nil)

	msg := obs.expect(t, "message")
	require.Equal(t, wsproto.OpClose, msg.opcode)
	code := wsproto.CloseCode(uint16(msg.payload[0])<<8 | uint16(msg.payload[1]))
	require.Equal(t, wsproto.CloseNormal, code)

	obs.expect(t, "disconnected")
}
