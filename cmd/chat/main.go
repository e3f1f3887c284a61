package main

import (
	"log"

	"social-chat/internal/chat"
)

func main() {
	cfg := chat.LoadConfig()
	app, err := chat.NewApp(cfg)
	if err != nil {
		log.Fatalf("chat start: %v", err)
	}
	app.Start()
	chat.WaitForShutdown(app)
}
