package chat

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"social-chat/internal/api"
	"social-chat/internal/authutil"
	"social-chat/internal/realtime"
	"social-chat/internal/storage"
	"social-chat/internal/ui"
)

// App encapsulates the client runtime components.
type App struct {
	Cfg *Config

	ctx    context.Context
	cancel context.CancelFunc

	API     *api.Client
	RT      *realtime.Client
	Ctrl    *Controller
	Archive *storage.Archive

	tui *ui.TUI
	web *ui.WebBridge
}

// NewApp wires all client dependencies according to the provided config.
func NewApp(cfg *Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	userID := cfg.UserID
	if userID == 0 && cfg.Token != "" {
		id, err := authutil.ValidateToken(cfg.Token)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("resolve user from token: %w", err)
		}
		userID = id
	}
	if userID == 0 {
		cancel()
		return nil, fmt.Errorf("current user unknown: provide --user or --token")
	}

	rest := api.New(cfg.APIBase, cfg.Token)

	rt, err := realtime.Dial(ctx, cfg.APIBase, cfg.Token)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect realtime channel: %w", err)
	}

	archive, err := storage.OpenArchive(cfg.ArchiveDB)
	if err != nil {
		log.Printf("archive unavailable (%v), running without local history", err)
	}

	app := &App{
		Cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		API:     rest,
		RT:      rt,
		Archive: archive,
	}

	app.tui = ui.NewTUI(ui.Handlers{
		Submit:       app.handleLine,
		InputChanged: func() { app.Ctrl.InputChanged() },
	})
	sinks := []ui.Sink{app.tui}
	if cfg.UseWeb {
		app.web = ui.NewWebBridge(cfg.WebAddr)
		sinks = append(sinks, app.web)
	}
	sink := ui.NewMultiSink(sinks...)

	ctrl := NewController(ctx, userID, rest, rt, sink, archive)
	ctrl.Uploads = NewUploadCoordinator(ctx, rest, sink, ctrl.SendMessage)
	if cfg.PollAttempts > 0 {
		ctrl.Uploads.pollAttempts = cfg.PollAttempts
	}
	app.Ctrl = ctrl

	return app, nil
}

// Start launches the event loop and user interfaces.
func (a *App) Start() {
	go a.Ctrl.Run(a.ctx, a.RT.Events())
	if a.web != nil {
		go a.web.Run(a.ctx)
	}
	go func() {
		if err := a.tui.Run(a.ctx); err != nil {
			log.Printf("tui error: %v", err)
		}
		a.cancel()
	}()

	if a.Cfg.PeerID != 0 {
		name := a.Cfg.PeerName
		if name == "" {
			name = fmt.Sprintf("user %d", a.Cfg.PeerID)
		}
		a.Ctrl.OpenConversation(a.Cfg.PeerID, name)
	} else {
		a.Ctrl.sink.ClearConversation()
	}
}

// handleLine processes one submitted input line: either a /command or a
// chat message for the open conversation.
func (a *App) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "/") {
		a.Ctrl.SendToCurrent(line)
		return
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/open":
		if len(fields) < 2 {
			a.Ctrl.sink.ShowSystem("usage: /open <peer-id> [name]")
			return
		}
		peerID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || peerID == 0 {
			a.Ctrl.sink.ShowSystem("invalid peer id")
			return
		}
		name := strings.Join(fields[2:], " ")
		if name == "" {
			name = fmt.Sprintf("user %d", peerID)
		}
		a.Ctrl.OpenConversation(peerID, name)
		a.Ctrl.sink.ClearInput()
	case "/close":
		a.Ctrl.CloseConversation()
		a.Ctrl.sink.ClearInput()
	case "/clear":
		// Destructive and one-sided; ask before wiping.
		if len(fields) > 1 && fields[1] == "yes" {
			a.Ctrl.ClearChat()
		} else {
			a.Ctrl.sink.ShowSystem("this wipes your copy of the conversation, type /clear yes to confirm")
		}
		a.Ctrl.sink.ClearInput()
	case "/share":
		if len(fields) < 2 {
			a.Ctrl.sink.ShowSystem("usage: /share <path>")
			return
		}
		a.shareFile(strings.Join(fields[1:], " "))
		a.Ctrl.sink.ClearInput()
	case "/archive":
		a.Ctrl.ShowArchive(50)
		a.Ctrl.sink.ClearInput()
	case "/quit":
		a.cancel()
	default:
		a.Ctrl.sink.ShowSystem("commands: /open /close /clear /share /archive /quit")
		a.Ctrl.sink.ClearInput()
	}
}

func (a *App) shareFile(path string) {
	snap := a.Ctrl.Snapshot()
	if !snap.Open() {
		a.Ctrl.sink.ShowSystem("no conversation open")
		return
	}
	file, err := os.Open(path)
	if err != nil {
		a.Ctrl.sink.ShowSystem(fmt.Sprintf("cannot read %s: %v", path, err))
		return
	}
	defer file.Close()
	err = a.Ctrl.Uploads.Share(snap.PeerID, snap.PeerName, filepath.Base(path), file)
	if err == ErrUploadInProgress {
		a.Ctrl.sink.ShowSystem("an upload is already in progress")
	}
}

// Shutdown stops background routines and releases resources.
func (a *App) Shutdown() {
	a.cancel()
	if a.RT != nil {
		a.RT.Close()
	}
	if a.web != nil {
		a.web.Close()
	}
	if a.tui != nil {
		a.tui.Stop()
	}
	if a.Archive != nil {
		_ = a.Archive.Close()
	}
}

// WaitForShutdown blocks until SIGINT/SIGTERM or internal cancellation,
// then stops the app.
func WaitForShutdown(app *App) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-app.ctx.Done():
	}
	log.Println("shutting down...")
	app.Shutdown()
}
