package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// DefaultExportLimit is how many recent text messages feed prompt
	// generation.
	DefaultExportLimit = 200
	// DefaultPromptLanguage is used when no language is configured.
	DefaultPromptLanguage = "Ukrainian"
)

// ErrEmptyExport is returned when an export holds no usable text.
var ErrEmptyExport = errors.New("chat export has no text messages")

// ExportLine is one text message of a chat export.
type ExportLine struct {
	Outgoing bool
	Text     string
}

// ChatExport is a one-to-one chat read from a Telegram Desktop JSON export.
type ChatExport struct {
	PeerID   int64
	PeerName string
	Lines    []ExportLine
}

type rawExport struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Messages []rawMessage `json:"messages"`
}

type rawMessage struct {
	Type   string     `json:"type"`
	FromID string     `json:"from_id"`
	Text   exportText `json:"text"`
}

// exportText is either a plain string or a list of strings and entity
// objects carrying a "text" field.
type exportText string

func (t *exportText) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*t = exportText(plain)
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode message text: %w", err)
	}
	var b strings.Builder
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			b.WriteString(s)
			continue
		}
		var entity struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(item, &entity); err != nil {
			return fmt.Errorf("decode text entity: %w", err)
		}
		b.WriteString(entity.Text)
	}
	*t = exportText(b.String())
	return nil
}

// ReadTelegramExport parses a single-chat export ("result.json") and keeps
// the last limit text messages in chronological order. Messages not sent by
// the peer count as outgoing.
func ReadTelegramExport(r io.Reader, limit int) (ChatExport, error) {
	if limit <= 0 {
		limit = DefaultExportLimit
	}
	var raw rawExport
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return ChatExport{}, fmt.Errorf("decode chat export: %w", err)
	}
	if raw.ID == 0 {
		return ChatExport{}, errors.New("chat export has no chat id")
	}
	peer := "user" + strconv.FormatInt(raw.ID, 10)
	out := ChatExport{PeerID: raw.ID, PeerName: strings.TrimSpace(raw.Name)}
	for _, msg := range raw.Messages {
		if msg.Type != "" && msg.Type != "message" {
			continue
		}
		text := strings.TrimSpace(string(msg.Text))
		if text == "" {
			continue
		}
		out.Lines = append(out.Lines, ExportLine{Outgoing: msg.FromID != peer, Text: text})
	}
	if len(out.Lines) == 0 {
		return ChatExport{}, ErrEmptyExport
	}
	if len(out.Lines) > limit {
		out.Lines = out.Lines[len(out.Lines)-limit:]
	}
	return out, nil
}

// GenerationRequest renders the instruction asking a model to write a
// system prompt for persona based on the export.
func GenerationRequest(persona, language string, export ChatExport) string {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = "Me"
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultPromptLanguage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following message history and write a system prompt in %s language for LLM impersonating real man %s conversation with this user:\n\n",
		language, persona)
	for i, line := range export.Lines {
		if i > 0 {
			b.WriteString("\n")
		}
		speaker := "User"
		if line.Outgoing {
			speaker = persona
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(line.Text)
	}
	return b.String()
}
