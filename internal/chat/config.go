package chat

import (
	"flag"
	"log"
	"os"
	"path/filepath"
)

const defaultArchivePath = "chat-archive.db"

// Config holds client runtime settings derived from CLI flags.
type Config struct {
	APIBase      string
	Token        string
	UserID       int64
	PeerID       int64
	PeerName     string
	UseWeb       bool
	WebAddr      string
	DataDir      string
	ArchiveDB    string
	PollAttempts int
}

// LoadConfig parses CLI flags and returns a populated Config.
func LoadConfig() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.APIBase, "api", "http://127.0.0.1:5000", "chat server base url")
	flag.StringVar(&cfg.Token, "token", "", "bearer token identifying the current user")
	flag.Int64Var(&cfg.UserID, "user", 0, "current user id (derived from --token when 0)")
	flag.Int64Var(&cfg.PeerID, "peer", 0, "conversation to open on startup")
	flag.StringVar(&cfg.PeerName, "peer-name", "", "display name for --peer")
	flag.BoolVar(&cfg.UseWeb, "web", false, "serve a local web mirror of the conversation")
	flag.StringVar(&cfg.WebAddr, "web-addr", "127.0.0.1:8081", "address for the web mirror")
	flag.StringVar(&cfg.DataDir, "data-dir", "social-chat-data", "base directory for local data")
	flag.StringVar(&cfg.ArchiveDB, "archive-db", defaultArchivePath, "path to the local conversation archive")
	flag.IntVar(&cfg.PollAttempts, "poll-attempts", defaultPollAttempts, "max status checks per deferred upload")

	flag.Parse()

	cfg.ensureDirs()
	return cfg
}

func (cfg *Config) ensureDirs() {
	if cfg.DataDir == "" {
		cfg.DataDir = "social-chat-data"
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("init data dir: %v", err)
	}
	if cfg.ArchiveDB == defaultArchivePath {
		cfg.ArchiveDB = filepath.Join(cfg.DataDir, "archive.db")
	}
}
