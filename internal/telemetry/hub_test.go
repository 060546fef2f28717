package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHubPublishDeliversToSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("connection")

	h.Publish("connection", "client connected")

	select {
	case ev := <-ch:
		require.Equal(t, "connection", ev.Kind)
		require.Equal(t, "client connected", ev.Detail)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("loop")
	h.Unsubscribe("loop", ch)

	h.Publish("loop", "stopped")

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestHubDropsOnFullBuffer(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("handshake")

	for i := 0; i < 100; i++ {
		h.Publish("handshake", "failed")
	}

	require.Len(t, ch, cap(ch))
}
