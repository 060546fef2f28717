// Package wsecho is a demo WebSocket message handler: it echoes every
// text or binary message back to its sender. It exists to exercise
// internal/wsserver end to end from cmd/ioloopd and as a worked
// example for cmd/iowsclient, the way the original's
// single-threaded-echo-server.cpp and threaded-event-loop-echo-server.cpp
// examples exercised the plain TCP event loop.
package wsecho

import (
	"log/slog"

	"github.com/brannigan/iocore/internal/ioloop"
	"github.com/brannigan/iocore/internal/metrics"
	"github.com/brannigan/iocore/internal/telemetry"
	"github.com/brannigan/iocore/internal/wsconn"
	"github.com/brannigan/iocore/internal/wsproto"
)

// Handler is the ioloop.Thread cmd/ioloopd starts once, on the accept
// loop, shared across every accepted connection on every loop in the
// pool: it receives every wsconn event for every client the server
// hands it.
type Handler struct {
	ioloop.Base

	log     *slog.Logger
	hub     *telemetry.Hub
	metrics *metrics.Metrics
}

// New builds an echo Handler. hub and m may be nil; a nil hub skips
// lifecycle publishing and a nil m skips metrics recording.
func New(log *slog.Logger, hub *telemetry.Hub, m *metrics.Metrics) *Handler {
	return &Handler{log: log, hub: hub, metrics: m}
}

func (h *Handler) Handle(event ioloop.Event) error {
	switch ev := event.(type) {
	case wsconn.WebSocketNewConnectionEvent:
		h.onConnect(ev)
	case wsconn.WebSocketMessageEvent:
		h.onMessage(ev)
	case wsconn.WebSocketErrorEvent:
		h.log.Warn("websocket error", "client", ev.Client.ID, "code", ev.Code, "error", ev.Err)
	case wsconn.WebSocketDisconnectedEvent:
		h.onDisconnect(ev)
	}
	return nil
}

func (h *Handler) onConnect(ev wsconn.WebSocketNewConnectionEvent) {
	h.log.Info("client connected", "client", ev.Client.ID)
	if h.hub != nil {
		h.hub.Publish("connection", "client connected: "+ev.Client.ID)
	}
	if h.metrics != nil {
		h.metrics.ConnectedClients.Inc()
	}
	ev.Client.StartReadingMessages(h.Self())
}

func (h *Handler) onMessage(ev wsconn.WebSocketMessageEvent) {
	if h.metrics != nil {
		h.metrics.BytesRead.Add(float64(len(ev.Payload)))
	}

	switch ev.Opcode {
	case wsproto.OpText:
		ev.Client.WriteText(ev.Payload)
	case wsproto.OpBinary:
		ev.Client.WriteBinary(ev.Payload)
	}

	if h.metrics != nil {
		h.metrics.BytesWritten.Add(float64(len(ev.Payload)))
	}
}

func (h *Handler) onDisconnect(ev wsconn.WebSocketDisconnectedEvent) {
	h.log.Info("client disconnected", "client", ev.Client.ID)
	if h.hub != nil {
		h.hub.Publish("connection", "client disconnected: "+ev.Client.ID)
	}
	if h.metrics != nil {
		h.metrics.ConnectedClients.Dec()
	}
}
