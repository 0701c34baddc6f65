package onebot

import (
	"encoding/json"
	"strings"
)

// Segment is one piece of a rich message: text, image, mention, reply.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Text builds a plain-text segment.
func Text(s string) Segment {
	return Segment{Type: "text", Data: map[string]any{"text": s}}
}

// Image builds an image segment. The file value may be a URL, a local path,
// or a base64:// payload.
func Image(file string) Segment {
	return Segment{Type: "image", Data: map[string]any{"file": file}}
}

// At builds a mention segment for the given user.
func At(userID int64) Segment {
	return Segment{Type: "at", Data: map[string]any{"qq": userID}}
}

// Reply builds a reply-reference segment for the given message id.
func Reply(messageID int64) Segment {
	return Segment{Type: "reply", Data: map[string]any{"id": messageID}}
}

// TextContent returns the segment's text value, or "" for non-text segments.
func (s Segment) TextContent() string {
	if s.Type != "text" {
		return ""
	}
	if t, ok := s.Data["text"].(string); ok {
		return t
	}
	return ""
}

// PlainText concatenates the text content of all text segments.
func PlainText(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.TextContent())
	}
	return b.String()
}

// ParseMessage decodes the wire `message` field, which is either a plain
// string or an array of segments.
func ParseMessage(raw json.RawMessage) ([]Segment, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		return []Segment{Text(s)}, nil
	}

	var segs []Segment
	if err := json.Unmarshal(raw, &segs); err != nil {
		return nil, err
	}
	return segs, nil
}
