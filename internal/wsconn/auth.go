package wsconn

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// HandshakeAuthenticator gates a server-role handshake before the
// Sec-WebSocket-Accept response is computed. Returning a non-nil error
// fails the handshake with HTTP 401 instead of the usual 400 so a
// caller distinguishes "malformed request" from "rejected credentials".
type HandshakeAuthenticator interface {
	Authenticate(headers map[string]string) error
}

// JWTAuthenticator validates a bearer token carried in the
// Authorization header against a shared HMAC secret.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(headers map[string]string) error {
	raw := headers["authorization"]
	const prefix = "Bearer "
	if len(raw) <= len(prefix) || raw[:len(prefix)] != prefix {
		return fmt.Errorf("wsconn: missing bearer token")
	}
	tokenString := raw[len(prefix):]

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("wsconn: invalid bearer token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("wsconn: token failed validation")
	}
	return nil
}

// PreSharedKeyAuthenticator checks a handshake header against a
// bcrypt-hashed pre-shared key, for deployments that would rather
// distribute one secret than run a token issuer.
type PreSharedKeyAuthenticator struct {
	headerName string
	hash       []byte
}

func NewPreSharedKeyAuthenticator(headerName, bcryptHash string) *PreSharedKeyAuthenticator {
	return &PreSharedKeyAuthenticator{headerName: strings.ToLower(headerName), hash: []byte(bcryptHash)}
}

func (a *PreSharedKeyAuthenticator) Authenticate(headers map[string]string) error {
	presented := headers[a.headerName]
	if presented == "" {
		return fmt.Errorf("wsconn: missing %s header", a.headerName)
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(presented)); err != nil {
		return fmt.Errorf("wsconn: pre-shared key mismatch: %w", err)
	}
	return nil
}
