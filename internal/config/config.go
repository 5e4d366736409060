package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultBlobBucket = "relay-files"
	DefaultRoomIdle   = time.Minute
)

var DefaultRooms = []string{"room1", "room2", "room3"}

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string

	// RedisAddr moves rate-limit windows and presence into Redis when set.
	RedisAddr string
	// NatsURL enables file relay through a JetStream object store.
	NatsURL    string
	BlobBucket string

	ScannerURL   string
	ScanFailOpen bool

	PersistEncrypted bool
	TranscriptPath   string

	DefaultRooms []string
	RoomIdle     time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("empty key")
	}
	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		BlobBucket:     DefaultBlobBucket,
		DefaultRooms:   append([]string(nil), DefaultRooms...),
		RoomIdle:       DefaultRoomIdle,
	}, nil
}

// Validate checks the optional settings after flags have been applied.
func (c *Config) Validate() error {
	if c.NatsURL != "" && c.BlobBucket == "" {
		return fmt.Errorf("blob bucket cannot be empty when a NATS URL is set")
	}
	if c.RoomIdle <= 0 {
		return fmt.Errorf("room idle timeout must be positive")
	}
	if c.ScanFailOpen && c.ScannerURL == "" {
		return fmt.Errorf("scan-fail-open requires a scanner URL")
	}
	return nil
}
