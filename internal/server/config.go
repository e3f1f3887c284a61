// Package server implements the chat service: REST endpoints for messages
// and file sharing, a websocket event bus, and pluggable persistence. It
// runs either against PostgreSQL or, when no DATABASE_URL is set, on an
// in-memory store for local development.
package server

import (
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment.
type Config struct {
	Addr          string `env:"CHAT_ADDR" envDefault:":5000"`
	DatabaseURL   string `env:"DATABASE_URL"`
	DataDir       string `env:"CHAT_DATA_DIR" envDefault:"social-chat-server"`
	ContentSecret string `env:"CHAT_CONTENT_SECRET"`
	MaxUploadMB   int64  `env:"CHAT_MAX_UPLOAD_MB" envDefault:"25"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FilesDBPath is the BoltDB holding upload metadata.
func (c Config) FilesDBPath() string {
	return filepath.Join(c.DataDir, "files.db")
}

// UploadDir holds the stored file blobs.
func (c Config) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}
