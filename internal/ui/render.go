package ui

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/rivo/tview"

	"social-chat/internal/message"
)

// Render projects a resolved message into its display forms. Ownership (and
// therefore alignment) is decided by comparing sender to the current user.
func Render(userID int64, msg message.Message) RenderedMessage {
	out := RenderedMessage{
		Own:  msg.SenderID == userID,
		Time: msg.Timestamp.Format("15:04:05"),
		Text: msg.Content.Text,
	}
	if msg.Content.Kind == message.KindFile && msg.Content.File != nil {
		out.File = &FileCard{
			Name: msg.Content.File.Name,
			Href: msg.Content.File.Path,
			Icon: FileIcon(msg.Content.File.Name),
		}
	}
	out.Line = terminalLine(out)
	out.HTML = htmlFragment(out)
	return out
}

func terminalLine(msg RenderedMessage) string {
	who := "[lightblue]Friend[-]"
	if msg.Own {
		who = "[lightgreen]You[-]"
	}
	if msg.File != nil {
		return fmt.Sprintf("[yellow][%s][-] %s: [orange][%s][-] %s (%s)",
			msg.Time, who, iconLabel(msg.File.Icon), tview.Escape(msg.File.Name), tview.Escape(msg.File.Href))
	}
	return fmt.Sprintf("[yellow][%s][-] %s: %s", msg.Time, who, tview.Escape(msg.Text))
}

func htmlFragment(msg RenderedMessage) string {
	align := "peer"
	if msg.Own {
		align = "own"
	}
	if msg.File != nil {
		return fmt.Sprintf(
			`<div class="message %s"><div class="file-card"><i class="fas %s"></i><span class="file-name">%s</span><a href="%s" target="_blank" download>Download</a></div><time>%s</time></div>`,
			align, msg.File.Icon, EscapeText(msg.File.Name), EscapeText(msg.File.Href), msg.Time)
	}
	return fmt.Sprintf(`<div class="message %s"><p>%s</p><time>%s</time></div>`,
		align, EscapeText(msg.Text), msg.Time)
}

// EscapeText neutralizes markup-significant characters so message text is
// never interpreted as HTML by the web surface.
func EscapeText(s string) string {
	return markupEscaper.Replace(s)
}

// Ampersand must be first or the other entities get double-escaped.
var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// fileCategories maps extensions to icon categories; anything unlisted gets
// the generic file icon.
var fileCategories = map[string][]string{
	"fa-file-image":      {"jpg", "jpeg", "png", "gif", "bmp", "webp", "svg"},
	"fa-file-pdf":        {"pdf"},
	"fa-file-word":       {"doc", "docx"},
	"fa-file-excel":      {"xls", "xlsx", "csv"},
	"fa-file-powerpoint": {"ppt", "pptx"},
	"fa-file-lines":      {"txt", "rtf", "md"},
	"fa-file-code":       {"js", "py", "java", "cpp", "c", "cs", "html", "css", "php", "json", "xml", "go"},
	"fa-file-zipper":     {"zip", "rar", "7z", "tar", "gz"},
	"fa-file-audio":      {"mp3", "wav", "ogg", "m4a", "flac"},
	"fa-file-video":      {"mp4", "avi", "mov", "wmv", "flv", "mkv"},
	"fa-database":        {"sql", "db", "sqlite", "mdb"},
}

// FileIcon selects the icon class for a filename by extension.
func FileIcon(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	for icon, exts := range fileCategories {
		for _, e := range exts {
			if e == ext {
				return icon
			}
		}
	}
	return "fa-file"
}

func iconLabel(icon string) string {
	label := strings.TrimPrefix(icon, "fa-file-")
	label = strings.TrimPrefix(label, "fa-")
	if label == "file" || label == "lines" {
		return "file"
	}
	return label
}

// FormatFileSize renders a byte count in the classic 1024-based units with
// at most two decimals and no trailing zeros.
func FormatFileSize(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}
	sizes := []string{"Bytes", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i < 0 {
		i = 0
	}
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	value := float64(bytes) / math.Pow(1024, float64(i))
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizes[i]
}
