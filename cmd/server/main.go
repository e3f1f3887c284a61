package main

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/go-chi/httplog"
	_ "github.com/jackc/pgx/v5/stdlib"

	"social-chat/internal/server"
	"social-chat/internal/storage"
)

func main() {
	logger := httplog.NewLogger("chat-server", httplog.Options{JSON: false})

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL == "" {
		log.Print("DATABASE_URL not set; running on the in-memory message store")
	} else {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Fatalf("db ping: %v", err)
		}
	}

	files, err := storage.OpenFileStore(cfg.FilesDBPath(), cfg.UploadDir())
	if err != nil {
		log.Fatalf("open file store: %v", err)
	}
	defer files.Close()

	srv, err := server.New(cfg, db, files)
	if err != nil {
		log.Fatalf("init server: %v", err)
	}

	log.Printf("chat server running at %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, httplog.RequestLogger(logger)(srv.Router())); err != nil {
		log.Fatalf("chat server stopped: %v", err)
	}
}
