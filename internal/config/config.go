// Package config loads the process configuration for the iocore
// server and client binaries, ensuring no hardcoded values exist in
// the event loop or WebSocket business logic.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// ServerConfig drives cmd/ioloopd: the WebSocket server, its loop
// pool size, and the admin HTTP surface.
type ServerConfig struct {
	Host string `validate:"required"`
	Port int    `validate:"required,min=1,max=65535"`

	Loops int `validate:"required,min=1,max=256"`

	MaxHandshakeSize uint64 `validate:"required,min=64"`
	MaxMessageSize   uint64 `validate:"required,min=1024"`

	AdminHost string `validate:"required"`
	AdminPort int    `validate:"required,min=1,max=65535"`

	JWTSecret      string
	PreSharedKey   string
	AcceptRatePerS float64 `validate:"min=0"`
}

// ClientConfig drives cmd/iowsclient: a single outbound connection.
type ClientConfig struct {
	URL              string `validate:"required,url"`
	MaxHandshakeSize uint64 `validate:"required,min=64"`
	MaxMessageSize   uint64 `validate:"required,min=1024"`
}

// LoadServer reads environment variables (optionally populated from
// a local .env file, if present) into a ServerConfig and validates
// it. envFile may be empty, in which case ./.env is tried; a missing
// file is ignored and process environment alone is used.
func LoadServer(envFile string) (ServerConfig, error) {
	loadDotenv(envFile)

	cfg := ServerConfig{
		Host:             getEnv("IOCORE_HOST", "127.0.0.1"),
		Port:             getEnvInt("IOCORE_PORT", 9001),
		Loops:            getEnvInt("IOCORE_LOOPS", 4),
		MaxHandshakeSize: getEnvUint("IOCORE_MAX_HANDSHAKE_SIZE", 1024),
		MaxMessageSize:   getEnvUint("IOCORE_MAX_MESSAGE_SIZE", 64*1024*1024),
		AdminHost:        getEnv("IOCORE_ADMIN_HOST", "127.0.0.1"),
		AdminPort:        getEnvInt("IOCORE_ADMIN_PORT", 9090),
		JWTSecret:        os.Getenv("IOCORE_JWT_SECRET"),
		PreSharedKey:     os.Getenv("IOCORE_PSK_BCRYPT_HASH"),
		AcceptRatePerS:   getEnvFloat("IOCORE_ACCEPT_RATE", 0),
	}

	if err := validate.Struct(cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config: invalid server config: %w", err)
	}
	return cfg, nil
}

// LoadClient reads environment variables into a ClientConfig and
// validates it.
func LoadClient(envFile string) (ClientConfig, error) {
	loadDotenv(envFile)

	cfg := ClientConfig{
		URL:              getEnv("IOCORE_CLIENT_URL", "ws://127.0.0.1:9001/"),
		MaxHandshakeSize: getEnvUint("IOCORE_MAX_HANDSHAKE_SIZE", 1024),
		MaxMessageSize:   getEnvUint("IOCORE_MAX_MESSAGE_SIZE", 64*1024*1024),
	}

	if err := validate.Struct(cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("config: invalid client config: %w", err)
	}
	return cfg, nil
}

func loadDotenv(path string) {
	if path == "" {
		path = ".env"
	}
	// Best effort: a missing .env file is the common case outside
	// local development, not an error.
	_ = godotenv.Load(path)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvUint(key string, fallback uint64) uint64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
