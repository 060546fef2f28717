package wsconn

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brannigan/iocore/internal/wsproto"
)

func closePayload(code wsproto.CloseCode, reason string) []byte {
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(code))
	copy(buf[2:], reason)
	return buf
}

func TestDefaultCloseReplyEmptyPayloadIsNormal(t *testing.T) {
	require.Equal(t, wsproto.CloseNormal, defaultCloseReply(nil))
}

func TestDefaultCloseReplySingleByteIsProtocolError(t *testing.T) {
	require.Equal(t, wsproto.CloseProtocolError, defaultCloseReply([]byte{0x01}))
}

func TestDefaultCloseReplyValidCodeAndReasonIsNormal(t *testing.T) {
	require.Equal(t, wsproto.CloseNormal, defaultCloseReply(closePayload(wsproto.CloseNormal, "bye")))
}

func TestDefaultCloseReplyInvalidCodeIsProtocolError(t *testing.T) {
	require.Equal(t, wsproto.CloseProtocolError, defaultCloseReply(closePayload(wsproto.CloseCode(1006), "")))
	require.Equal(t, wsproto.CloseProtocolError, defaultCloseReply(closePayload(wsproto.CloseCode(999), "")))
	require.Equal(t, wsproto.CloseProtocolError, defaultCloseReply(closePayload(wsproto.CloseCode(2999), "")))
}

func TestDefaultCloseReplyInvalidUTF8ReasonIsInvalidPayload(t *testing.T) {
	payload := closePayload(wsproto.CloseNormal, "")
	payload = append(payload, 0xC0, 0xAF)
	require.Equal(t, wsproto.CloseInvalidPayloadUTF8, defaultCloseReply(payload))
}
