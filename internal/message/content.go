package message

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind tags the resolved shape of a message body.
type Kind int

const (
	KindText Kind = iota
	KindFile
)

// Content is the resolved form of a message body. Exactly one shape applies:
// plain display text, or a file reference extracted from the share marker.
type Content struct {
	Kind Kind
	Text string
	File *FileRef
}

// FileRef describes a shared file embedded in a message via the
// "Shared file: [Download](<path>)" convention.
type FileRef struct {
	Path string // download href, e.g. /api/download_file/abc/report.pdf
	Name string // final path segment
}

// fileMarker matches the textual file-share convention. The path group is
// anchored to the download endpoint so arbitrary links never render as file
// cards.
var fileMarker = regexp.MustCompile(`Shared file: \[Download\]\((/api/download_file/[^)]+)\)(.*)`)

// Text returns textual content.
func TextContent(text string) Content {
	return Content{Kind: KindText, Text: text}
}

// FileMarker formats the share convention for a returned file link, the
// exact string the upload coordinator sends as a chat message.
func FileMarker(fileLink string) string {
	return fmt.Sprintf("Shared file: [Download](%s)", fileLink)
}

// ResolveRaw resolves a raw JSON content value (string, object, number, ...)
// into tagged Content.
func ResolveRaw(raw json.RawMessage) Content {
	if len(raw) == 0 {
		return TextContent("")
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		// Not valid JSON at all; display the bytes as-is.
		return Resolve(string(raw))
	}
	return Resolve(v)
}

// Resolve collapses the legacy fallback chain once: an object yields its
// "message" field, then its "content" field, then its stringified form.
// Strings that look like JSON objects get the same chain applied after
// parsing; everything else is coerced to a string. The result is then
// matched against the file-share marker.
func Resolve(v interface{}) Content {
	display := displayString(v)
	if m := fileMarker.FindStringSubmatch(display); m != nil {
		path := m[1]
		segs := strings.Split(path, "/")
		return Content{
			Kind: KindFile,
			Text: display,
			File: &FileRef{Path: path, Name: segs[len(segs)-1]},
		}
	}
	return TextContent(display)
}

func displayString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		if strings.HasPrefix(val, "{") {
			var obj map[string]interface{}
			if err := json.Unmarshal([]byte(val), &obj); err == nil {
				if s := fromObject(obj); s != "" {
					return s
				}
			}
		}
		return val
	case map[string]interface{}:
		if s := fromObject(val); s != "" {
			return s
		}
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func fromObject(obj map[string]interface{}) string {
	for _, key := range []string{"message", "content"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Preview extracts best-effort display text for conversation-list previews,
// tolerating the same payload shapes as Resolve.
func Preview(v interface{}) string {
	return displayString(v)
}
