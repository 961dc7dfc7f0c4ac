// Package conversation defines the role-tagged transcript sent to the
// completion backend and the rules that normalize it.
package conversation

import (
	"encoding/base64"
	"strings"
)

// Role constants.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind is the closed set of content part kinds.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// PlaceholderText stands in for messages whose content could not be extracted.
const PlaceholderText = "[non-text message]"

// Part is one atomic unit of model input.
type Part struct {
	Kind PartKind
	Text string
	Mime string
	Data []byte
	// Attachment marks document-derived parts (PDF pages, Word text). They
	// are subject to latest-attachment retention like images.
	Attachment bool
	// Group identifies the source file; parts of one document share it.
	Group string
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// ImagePart builds an image part from encoded bytes.
func ImagePart(mime string, data []byte, group string) Part {
	return Part{Kind: PartImage, Mime: mime, Data: data, Group: group}
}

// DocumentText builds a text part carrying document content.
func DocumentText(text, group string) Part {
	return Part{Kind: PartText, Text: text, Attachment: true, Group: group}
}

// DocumentPage builds an image part for one rendered document page.
func DocumentPage(mime string, data []byte, group string) Part {
	return Part{Kind: PartImage, Mime: mime, Data: data, Attachment: true, Group: group}
}

// IsAttachment reports whether the part is subject to attachment retention.
func (p Part) IsAttachment() bool {
	return p.Kind == PartImage || p.Attachment
}

// IsPlainText reports whether the part is text that may be merged with
// neighbouring text.
func (p Part) IsPlainText() bool {
	return p.Kind == PartText && !p.Attachment
}

// DataURL renders image bytes as a base64 data URL.
func (p Part) DataURL() string {
	mime := strings.TrimSpace(p.Mime)
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Block is a run of parts attributed to one role.
type Block struct {
	Role  Role
	Parts []Part
}

// Transcript is an ordered list of blocks starting with the system block.
type Transcript []Block

// AttachmentBlocks returns the indexes of blocks carrying attachment parts.
func (t Transcript) AttachmentBlocks() []int {
	var out []int
	for i, block := range t {
		for _, part := range block.Parts {
			if part.IsAttachment() {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// Clone returns a deep copy of the block structure. Part payloads are shared.
func (t Transcript) Clone() Transcript {
	out := make(Transcript, len(t))
	for i, block := range t {
		out[i] = Block{Role: block.Role, Parts: append([]Part(nil), block.Parts...)}
	}
	return out
}
