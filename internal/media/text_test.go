package media

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyDocument(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mime string
		name string
		want DocumentKind
	}{
		{"image/jpeg", "photo.jpg", DocumentImage},
		{"image/png", "no-extension", DocumentUnknown},
		{"application/pdf", "", DocumentPDF},
		{"application/octet-stream", "Scan.PDF", DocumentPDF},
		{mimeDOCX, "", DocumentWord},
		{"", "notes.docx", DocumentWord},
		{"text/html; charset=utf-8", "page", DocumentHTML},
		{"text/plain", "", DocumentText},
		{"application/octet-stream", "server.log", DocumentText},
		{"application/zip", "a.zip", DocumentUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyDocument(tc.mime, tc.name); got != tc.want {
			t.Fatalf("ClassifyDocument(%q, %q) = %q, want %q", tc.mime, tc.name, got, tc.want)
		}
	}
}

func TestDecodeText(t *testing.T) {
	t.Parallel()

	if got := DecodeText([]byte("\xEF\xBB\xBFдобрий день")); got != "добрий день" {
		t.Fatalf("utf-8 with BOM: %q", got)
	}
	if got := DecodeText([]byte{'n', 0xE4, 'h'}); got != "näh" {
		t.Fatalf("latin-1 fallback: %q", got)
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	t.Parallel()

	got := HTMLToMarkdown([]byte("<h1>Title</h1><p>Hello <b>world</b></p>"))
	if !strings.Contains(got, "# Title") || !strings.Contains(got, "**world**") {
		t.Fatalf("unexpected markdown: %q", got)
	}
}

func TestTruncateText(t *testing.T) {
	t.Parallel()

	if got := truncateText("short", 10); got != "short" {
		t.Fatalf("short text changed: %q", got)
	}
	got := truncateText("ґґґґ", 3)
	if got != "ґ\n[truncated]" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestExtractDocxTextErrors(t *testing.T) {
	t.Parallel()

	if _, err := ExtractDocxText([]byte("not a zip")); err == nil {
		t.Fatal("expected error for invalid archive")
	}
	empty := buildDocx(t, `<w:document xmlns:w="x"><w:body><w:p/></w:body></w:document>`)
	if _, err := ExtractDocxText(empty); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestDocumentKeyHashesUnsafeIDs(t *testing.T) {
	t.Parallel()

	if got := documentKey("AgAD-_9", "text.txt"); got != "documents/AgAD-_9/text.txt" {
		t.Fatalf("safe id changed: %q", got)
	}
	got := documentKey("../../etc", "text.txt")
	if strings.Contains(got, "..") || !strings.HasPrefix(got, "documents/") {
		t.Fatalf("unsafe id not hashed: %q", got)
	}
}
