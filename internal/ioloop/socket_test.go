package ioloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// echoThread reads whatever arrives on its connection and writes it
// straight back, closing once the peer shuts its write side.
type echoThread struct {
	Base
	conn EventSocket
	done chan struct{}
}

func (e *echoThread) Handle(event Event) error {
	switch ev := event.(type) {
	case StartEvent:
		e.conn.Read(e.Self())
	case ReadEvent:
		if len(ev.Bytes) == 0 {
			_ = e.conn.Close()
			close(e.done)
			return nil
		}
		e.conn.Write(e.Self(), ev.Bytes)
	case WriteEvent:
		e.conn.Read(e.Self())
	case ErrorEvent:
		_ = e.conn.Close()
		close(e.done)
	}
	return nil
}

type acceptorThread struct {
	Base
	listener EventSocket
	accepted chan RawSocket
}

func (a *acceptorThread) Handle(event Event) error {
	switch ev := event.(type) {
	case StartEvent:
		a.listener.Accept(a.Self())
	case AcceptEvent:
		a.accepted <- ev.Socket
		a.listener.Accept(a.Self())
	}
	return nil
}

func TestLoopEchoesOverRealLoopbackSocket(t *testing.T) {
	loop, err := NewLoop(testLogger())
	require.NoError(t, err)
	go func() { _ = loop.Run() }()
	defer loop.Stop()

	listenRaw, err := OpenTCPSocket()
	require.NoError(t, err)
	require.NoError(t, listenRaw.Bind("127.0.0.1", 18099))
	require.NoError(t, listenRaw.Listen(128))

	listenSocket, err := loop.RegisterSocket(listenRaw)
	require.NoError(t, err)

	acceptor := &acceptorThread{listener: listenSocket, accepted: make(chan RawSocket, 1)}
	loop.StartThread(acceptor)

	clientRaw, err := OpenTCPSocket()
	require.NoError(t, err)
	require.NoError(t, clientRaw.Connect("127.0.0.1", 18099))

	var serverRaw RawSocket
	select {
	case serverRaw = <-acceptor.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	serverSocket, err := loop.RegisterSocket(serverRaw)
	require.NoError(t, err)
	echo := &echoThread{conn: serverSocket, done: make(chan struct{})}
	loop.StartThread(echo)

	payload := []byte("hello over the wire")
	n, err := clientRaw.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	read := 0
	deadline := time.Now().Add(2 * time.Second)
	for read < len(buf) && time.Now().Before(deadline) {
		m, err := clientRaw.Read(buf[read:])
		if err == ErrWouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(t, err)
		read += m
	}
	require.Equal(t, payload, buf)

	require.NoError(t, clientRaw.Close())
	select {
	case <-echo.done:
	case <-time.After(2 * time.Second):
		t.Fatal("server echo thread never observed end-of-stream")
	}
}
