package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Handlers are the controller entry points the terminal surface drives.
type Handlers struct {
	Submit       func(line string) // message text or a /command
	InputChanged func()            // fires on every keystroke (typing events)
}

// TUI renders the conversation with tview: a header, the scrolling message
// list, a typing-indicator line, upload notifications, and the input field.
type TUI struct {
	app      *tview.Application
	header   *tview.TextView
	messages *tview.TextView
	typing   *tview.TextView
	uploads  *tview.TextView
	input    *tview.InputField

	mu       sync.Mutex
	sessions map[string]UploadView
	previews map[int64]string

	clearing atomic.Bool
	once     sync.Once
}

func NewTUI(handlers Handlers) *TUI {
	header := tview.NewTextView().SetDynamicColors(true)
	header.SetBorder(true).SetTitle("Conversation")

	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(false).
		SetScrollable(true)
	messages.SetBorder(true).SetTitle("Messages")

	typing := tview.NewTextView().SetDynamicColors(true)

	uploads := tview.NewTextView().SetDynamicColors(true)
	uploads.SetBorder(true).SetTitle("Uploads")

	input := tview.NewInputField().
		SetLabel("> ").
		SetFieldTextColor(tcell.ColorWhite)

	t := &TUI{
		app:      tview.NewApplication(),
		header:   header,
		messages: messages,
		typing:   typing,
		uploads:  uploads,
		input:    input,
		sessions: make(map[string]UploadView),
		previews: make(map[int64]string),
	}

	// tview fires the changed func on programmatic SetText too; the
	// clearing flag keeps ClearInput from emitting a typing event.
	input.SetChangedFunc(func(string) {
		if t.clearing.Load() {
			return
		}
		if handlers.InputChanged != nil {
			handlers.InputChanged()
		}
	})
	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(input.GetText())
		if text == "" {
			return
		}
		if handlers.Submit != nil {
			go handlers.Submit(text)
		}
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 3, 0, false).
		AddItem(messages, 0, 5, false).
		AddItem(typing, 1, 0, false).
		AddItem(uploads, 6, 0, false).
		AddItem(input, 3, 1, true)

	t.app.SetRoot(layout, true).EnableMouse(true)
	return t
}

func (t *TUI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.once.Do(func() {
			t.app.Stop()
		})
	}()
	return t.app.Run()
}

func (t *TUI) Stop() {
	t.once.Do(func() {
		t.app.Stop()
	})
}

func (t *TUI) SetConversation(name string) {
	t.app.QueueUpdateDraw(func() {
		t.header.SetText(fmt.Sprintf("[white]%s[-]  [gray](/clear wipes your copy)[-]", tview.Escape(name)))
	})
}

func (t *TUI) ClearConversation() {
	t.app.QueueUpdateDraw(func() {
		t.header.SetText("[gray]no conversation open, use /open <id> <name>[-]")
		t.messages.SetText("")
		t.typing.SetText("")
	})
}

func (t *TUI) ResetMessages() {
	t.app.QueueUpdateDraw(func() {
		t.messages.SetText("")
	})
}

func (t *TUI) ShowMessage(msg RenderedMessage) {
	t.app.QueueUpdateDraw(func() {
		fmt.Fprint(t.messages, msg.Line+"\n")
		t.messages.ScrollToEnd()
	})
}

func (t *TUI) ShowSystem(text string) {
	t.app.QueueUpdateDraw(func() {
		fmt.Fprintf(t.messages, "[green]>>> %s[-]\n", tview.Escape(text))
		t.messages.ScrollToEnd()
	})
}

func (t *TUI) ShowTyping() {
	t.app.QueueUpdateDraw(func() {
		t.typing.SetText("[gray]● ● ● typing[-]")
	})
}

func (t *TUI) HideTyping() {
	t.app.QueueUpdateDraw(func() {
		t.typing.SetText("")
	})
}

func (t *TUI) ShowUpload(v UploadView) {
	t.mu.Lock()
	t.sessions[v.ID] = v
	t.mu.Unlock()
	t.redrawUploads()
}

func (t *TUI) RemoveUpload(id string) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
	t.redrawUploads()
}

func (t *TUI) redrawUploads() {
	t.mu.Lock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		v := t.sessions[id]
		color := "blue"
		if v.Failed {
			color = "red"
		} else if v.Progress >= 100 {
			color = "green"
		}
		fmt.Fprintf(&b, "[%s]%3d%%[-] %s", color, v.Progress, tview.Escape(v.Message))
		if v.Recipient != "" {
			fmt.Fprintf(&b, " [gray](to %s)[-]", tview.Escape(v.Recipient))
		}
		b.WriteString("  ")
		for i, step := range v.Steps {
			if i > 0 {
				b.WriteString(" • ")
			}
			fmt.Fprintf(&b, "[%s]%s[-]", stepColor(step.Status), tview.Escape(step.Label))
		}
		b.WriteString("\n")
	}
	t.mu.Unlock()
	t.app.QueueUpdateDraw(func() {
		t.uploads.SetText(b.String())
	})
}

func stepColor(status string) string {
	switch status {
	case "complete":
		return "green"
	case "current":
		return "blue"
	case "error":
		return "red"
	default:
		return "gray"
	}
}

func (t *TUI) ClearInput() {
	t.app.QueueUpdateDraw(t.clearInputNow)
}

func (t *TUI) clearInputNow() {
	t.clearing.Store(true)
	t.input.SetText("")
	t.clearing.Store(false)
}

func (t *TUI) UpdatePreview(peerID int64, text string) {
	t.mu.Lock()
	t.previews[peerID] = text
	t.mu.Unlock()
}

// Preview returns the last preview text recorded for a peer.
func (t *TUI) Preview(peerID int64) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.previews[peerID]
}
