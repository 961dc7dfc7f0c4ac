package media

import (
	"bytes"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText decodes document bytes as UTF-8, falling back to Latin-1 when
// the payload is not valid UTF-8. It never fails.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(decoded)
}

// HTMLToMarkdown converts an HTML document to Markdown, returning the
// decoded source unchanged when conversion fails.
func HTMLToMarkdown(data []byte) string {
	source := DecodeText(data)
	markdown, err := htmltomarkdown.ConvertString(source)
	if err != nil {
		return source
	}
	return markdown
}

// truncateText cuts text to maxBytes on a rune boundary.
func truncateText(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n[truncated]"
}
