package server

import "fmt"

// Config holds the HTTP listener settings.
type Config struct {
	Host        string `koanf:"host"         json:"host"`
	Port        int    `koanf:"port"         json:"port"`
	CORSEnabled bool   `koanf:"cors_enabled" json:"cors_enabled"`
	// SigningKey feeds the HMAC signature attached to job envelopes so
	// callers can verify a handle came from this server.
	SigningKey string `koanf:"signing_key" json:"signing_key"`
}

func DefaultConfig() *Config {
	return &Config{
		Host:        "0.0.0.0",
		Port:        3000,
		CORSEnabled: true,
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
