package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

type Config struct {
	ServerAddr  string
	RPCAddr     string
	DatabaseDSN string

	AuthServiceAddr string
	UserServiceAddr string

	RedisAddr     string
	RedisPassword string

	SigningKey     []byte
	AllowedOrigins []string

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerCallTimeout      time.Duration
	BreakerResetTimeout     time.Duration

	HealthInterval time.Duration

	MessageRateLimit  int
	MessageRateWindow time.Duration
}

// Params holds the raw inputs to NewConfig before validation. Zero values
// fall back to defaults where one exists.
type Params struct {
	ServerAddr      string
	RPCAddr         string
	DatabaseDSN     string
	AuthServiceAddr string
	UserServiceAddr string
	RedisAddr       string
	RedisPassword   string
	Base64Secret    string
	AllowedOrigins  []string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(p Params) (*Config, error) {
	if p.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if p.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if p.AuthServiceAddr == "" && p.Base64Secret == "" {
		return nil, fmt.Errorf("either an auth service address or a signing secret is required")
	}

	var signingKey []byte
	if p.Base64Secret != "" {
		var err error
		signingKey, err = decodeSigningSecret(p.Base64Secret)
		if err != nil {
			return nil, fmt.Errorf("decode signing secret: %w", err)
		}
	}

	return &Config{
		ServerAddr:      p.ServerAddr,
		RPCAddr:         p.RPCAddr,
		DatabaseDSN:     p.DatabaseDSN,
		AuthServiceAddr: p.AuthServiceAddr,
		UserServiceAddr: p.UserServiceAddr,
		RedisAddr:       p.RedisAddr,
		RedisPassword:   p.RedisPassword,
		SigningKey:      signingKey,
		AllowedOrigins:  p.AllowedOrigins,

		BreakerFailureThreshold: 5,
		BreakerSuccessThreshold: 2,
		BreakerCallTimeout:      5 * time.Second,
		BreakerResetTimeout:     30 * time.Second,

		HealthInterval: 15 * time.Second,

		MessageRateLimit:  10,
		MessageRateWindow: 10 * time.Second,
	}, nil
}
