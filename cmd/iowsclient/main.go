// Command iowsclient is a small interactive WebSocket client: it
// dials a server, sends stdin lines as TEXT frames, and prints every
// TEXT or BINARY message it receives, the Go-idiomatic counterpart to the original's
// ws-client2.cpp Autobahn test-suite driver.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/brannigan/iocore/internal/config"
	"github.com/brannigan/iocore/internal/ioloop"
	"github.com/brannigan/iocore/internal/telemetry"
	"github.com/brannigan/iocore/internal/wsconn"
	"github.com/brannigan/iocore/internal/wsproto"
)

type printHandler struct {
	ioloop.Base
	done chan struct{}
}

func (h *printHandler) Handle(event ioloop.Event) error {
	switch ev := event.(type) {
	case wsconn.WebSocketMessageEvent:
		switch ev.Opcode {
		case wsproto.OpText:
			fmt.Printf("< %s\n", string(ev.Payload))
		case wsproto.OpBinary:
			fmt.Printf("< [%d binary bytes]\n", len(ev.Payload))
		}
	case wsconn.WebSocketErrorEvent:
		fmt.Fprintf(os.Stderr, "protocol error: %v\n", ev.Err)
	case wsconn.WebSocketDisconnectedEvent:
		close(h.done)
	}
	return nil
}

func main() {
	logger := telemetry.NewLogger(slog.LevelWarn)

	cfg, err := config.LoadClient("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	loop, err := ioloop.NewLoop(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build event loop: %v\n", err)
		os.Exit(1)
	}
	go func() { _ = loop.Run() }()
	defer loop.Stop()

	handler := &printHandler{done: make(chan struct{})}
	handlerRef := loop.StartThread(handler)

	client, err := wsconn.Dial(loop, cfg.URL, cfg.MaxHandshakeSize, cfg.MaxMessageSize, handlerRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to dial %s: %v\n", cfg.URL, err)
		os.Exit(1)
	}

	fmt.Printf("connected to %s, type lines to send, Ctrl-D to quit\n", cfg.URL)

	scanner := bufio.NewScanner(os.Stdin)
	go func() {
		for scanner.Scan() {
			client.WriteText(scanner.Bytes())
		}
		client.WriteClose(wsproto.CloseNormal, nil)
	}()

	<-handler.done
}
