package wsconn

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeAcceptMatchesRFC6455Example(t *testing.T) {
	// The worked example from RFC 6455 section 1.3.
	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", computeAccept("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestGenerateKeyProducesSixteenRandomBytes(t *testing.T) {
	key, err := generateKey()
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err)
	require.Len(t, decoded, 16)

	other, err := generateKey()
	require.NoError(t, err)
	require.NotEqual(t, key, other)
}

func TestParseHeadLowercasesHeaderNames(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nUpgrade: websocket\r\nSec-WebSocket-Key: abc\r\n\r\nextra")
	head, consumed, ok := parseHead(raw)
	require.True(t, ok)
	require.Equal(t, "websocket", head.header("upgrade"))
	require.Equal(t, "websocket", head.header("UPGRADE"))
	require.Equal(t, "abc", head.header("sec-websocket-key"))
	require.Equal(t, len(raw)-len("extra"), consumed)
}

func TestParseHeadReportsIncompleteHead(t *testing.T) {
	_, _, ok := parseHead([]byte("GET / HTTP/1.1\r\nUpgrade: web"))
	require.False(t, ok)
}

func TestParseHeadParsesStatusLine(t *testing.T) {
	raw := []byte("HTTP/1.1 101 Switching Protocols\r\nSec-WebSocket-Accept: xyz\r\n\r\n")
	head, _, ok := parseHead(raw)
	require.True(t, ok)
	require.Equal(t, 101, head.statusCode)
	require.Equal(t, "xyz", head.header("sec-websocket-accept"))
}

func TestBuildClientRequestCarriesRequiredHeaders(t *testing.T) {
	req := string(buildClientRequest("example.com", 8080, "/chat", "thekey"))
	require.Contains(t, req, "GET /chat HTTP/1.1\r\n")
	require.Contains(t, req, "upgrade: websocket\r\n")
	require.Contains(t, req, "connection: upgrade\r\n")
	require.Contains(t, req, "sec-websocket-key: thekey\r\n")
	require.Contains(t, req, "sec-websocket-version: 13\r\n")
	require.Contains(t, req, "Host: example.com:8080\r\n")
}

func TestBuildServerSuccessResponseCarriesAccept(t *testing.T) {
	resp := string(buildServerSuccessResponse("acceptvalue"))
	require.Contains(t, resp, "HTTP/1.1 101 Switching Protocols\r\n")
	require.Contains(t, resp, "Sec-WebSocket-Accept: acceptvalue\r\n")
}

func TestBuildErrorResponseCarriesStatusAndReason(t *testing.T) {
	resp := string(buildErrorResponse("401 Unauthorized", "bad token"))
	require.Contains(t, resp, "HTTP/1.1 401 Unauthorized\r\n")
	require.Contains(t, resp, "bad token")
}
