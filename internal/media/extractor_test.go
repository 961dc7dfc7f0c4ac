package media

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/memohai/mimic/internal/channel"
	"github.com/memohai/mimic/internal/conversation"
)

type fakeDownloader struct {
	mu    sync.Mutex
	files map[string][]byte
	calls map[string]int
}

func newFakeDownloader(files map[string][]byte) *fakeDownloader {
	return &fakeDownloader{files: files, calls: map[string]int{}}
}

func (d *fakeDownloader) DownloadMedia(_ context.Context, file channel.File) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[file.ID]++
	data, ok := d.files[file.ID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", file.ID)
	}
	return data, nil
}

func (d *fakeDownloader) count(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[id]
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}

type countingRenderer struct {
	mu    sync.Mutex
	calls int
	pages int
}

func (r *countingRenderer) RenderPages(_ context.Context, pdf []byte, maxPages int) ([][]byte, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	n := r.pages
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, []byte(fmt.Sprintf("%s-page-%d", pdf, i+1)))
	}
	return out, nil
}

// memStore is an in-memory StorageProvider.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(_ context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) AccessPath(key string) string { return "mem://" + key }

func TestExtractNoneForEmptyMessage(t *testing.T) {
	t.Parallel()

	// Whitespace-only text carries nothing for the model and counts as empty.
	e := NewExtractor(nil, newFakeDownloader(nil), ExtractorOptions{})
	for _, text := range []string{"", "   ", "\n\t \n"} {
		parts, ok := e.Extract(context.Background(), channel.Message{ID: 1, Text: text})
		if ok || parts != nil {
			t.Fatalf("text %q: expected NONE, got %v %+v", text, ok, parts)
		}
	}
}

func TestExtractTextThenPhoto(t *testing.T) {
	t.Parallel()

	dl := newFakeDownloader(map[string][]byte{"ph": []byte("jpeg-bytes")})
	e := NewExtractor(nil, dl, ExtractorOptions{})
	parts, ok := e.Extract(context.Background(), channel.Message{
		Text:  "look at this",
		Photo: &channel.File{ID: "ph", UniqueID: "ph-u"},
	})
	if !ok || len(parts) != 2 {
		t.Fatalf("expected text + image, got %v %+v", ok, parts)
	}
	if parts[0].Text != "look at this" || parts[1].Kind != conversation.PartImage {
		t.Fatalf("unexpected order: %+v", parts)
	}
	if parts[1].Mime != "image/jpeg" || string(parts[1].Data) != "jpeg-bytes" || parts[1].Group != "ph-u" {
		t.Fatalf("unexpected image part: %+v", parts[1])
	}
	if parts[1].Attachment {
		t.Fatal("photos are not document attachments")
	}
}

func TestExtractVoiceTranscriptAppendedToCaption(t *testing.T) {
	t.Parallel()

	dl := newFakeDownloader(map[string][]byte{"v": []byte("ogg")})
	e := NewExtractor(nil, dl, ExtractorOptions{Transcriber: fakeTranscriber{text: " привіт, як справи? "}})
	parts, ok := e.Extract(context.Background(), channel.Message{
		Text:  "listen",
		Voice: &channel.File{ID: "v"},
	})
	if !ok || len(parts) != 1 || parts[0].Text != "listen\nпривіт, як справи?" {
		t.Fatalf("unexpected parts: %v %+v", ok, parts)
	}
}

func TestExtractFailedTranscriptionYieldsPlaceholder(t *testing.T) {
	t.Parallel()

	dl := newFakeDownloader(map[string][]byte{"v": []byte("ogg")})
	e := NewExtractor(nil, dl, ExtractorOptions{Transcriber: fakeTranscriber{err: errors.New("whisper missing")}})
	parts, ok := e.Extract(context.Background(), channel.Message{Voice: &channel.File{ID: "v"}})
	if !ok {
		t.Fatal("voice message is eligible and must not be NONE")
	}
	if len(parts) != 1 || parts[0].Text != conversation.PlaceholderText {
		t.Fatalf("expected placeholder, got %+v", parts)
	}

	parts, ok = e.Extract(context.Background(), channel.Message{Text: "caption", VideoNote: &channel.File{ID: "v"}})
	if !ok || len(parts) != 1 || parts[0].Text != "caption" {
		t.Fatalf("failed transcription should degrade to caption: %+v", parts)
	}
}

func TestExtractPDFUsesCacheOnSecondReference(t *testing.T) {
	t.Parallel()

	dl := newFakeDownloader(map[string][]byte{"pdf-1": []byte("pdf")})
	renderer := &countingRenderer{pages: 3}
	cache := NewDocumentCache(nil, newMemStore())
	e := NewExtractor(nil, dl, ExtractorOptions{Renderer: renderer, Cache: cache})
	msg := channel.Message{Document: &channel.File{ID: "pdf-1", UniqueID: "AgADpdf", Mime: "application/pdf", Name: "report.pdf"}}

	first, ok := e.Extract(context.Background(), msg)
	if !ok || len(first) != 3 {
		t.Fatalf("expected 3 page parts, got %+v", first)
	}
	for _, part := range first {
		if !part.Attachment || part.Kind != conversation.PartImage || part.Group != "AgADpdf" {
			t.Fatalf("unexpected page part: %+v", part)
		}
	}

	// Same document forwarded again under a new file id.
	again := channel.Message{Document: &channel.File{ID: "pdf-2", UniqueID: "AgADpdf", Mime: "application/pdf", Name: "report.pdf"}}
	second, ok := e.Extract(context.Background(), again)
	if !ok || len(second) != 3 {
		t.Fatalf("expected cached pages, got %+v", second)
	}
	if renderer.calls != 1 {
		t.Fatalf("renderer called %d times, want 1", renderer.calls)
	}
	if dl.count("pdf-2") != 0 {
		t.Fatal("cached document must not be downloaded again")
	}
	for i := range first {
		if !bytes.Equal(first[i].Data, second[i].Data) {
			t.Fatalf("page %d differs after cache reuse", i+1)
		}
	}
}

func TestExtractPDFWithoutRendererFallsBackToPlaceholder(t *testing.T) {
	t.Parallel()

	dl := newFakeDownloader(map[string][]byte{"pdf": []byte("pdf")})
	e := NewExtractor(nil, dl, ExtractorOptions{})
	parts, ok := e.Extract(context.Background(), channel.Message{Document: &channel.File{ID: "pdf", Mime: "application/pdf"}})
	if !ok || len(parts) != 1 || parts[0].Text != conversation.PlaceholderText {
		t.Fatalf("expected placeholder, got %+v", parts)
	}
}

func TestExtractWordDocumentCached(t *testing.T) {
	t.Parallel()

	docx := buildDocx(t, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
		`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>`+
		`<w:p></w:p>`+
		`<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>line</w:t></w:r></w:p>`+
		`</w:body></w:document>`)
	dl := newFakeDownloader(map[string][]byte{"d": docx})
	store := newMemStore()
	e := NewExtractor(nil, dl, ExtractorOptions{Cache: NewDocumentCache(nil, store)})
	msg := channel.Message{Text: "see attached", Document: &channel.File{ID: "d", UniqueID: "AgADdoc", Name: "notes.docx"}}

	parts, ok := e.Extract(context.Background(), msg)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected caption + document text, got %+v", parts)
	}
	if parts[1].Text != "Hello world\nSecond\tline" || !parts[1].Attachment {
		t.Fatalf("unexpected document part: %+v", parts[1])
	}
	if _, ok := store.objects["documents/AgADdoc/text.txt"]; !ok {
		t.Fatal("word text not cached")
	}
	if _, ok := e.Extract(context.Background(), msg); !ok || dl.count("d") != 1 {
		t.Fatalf("second extraction should hit the cache, downloads=%d", dl.count("d"))
	}
}

func TestExtractTextDocumentLatin1Fallback(t *testing.T) {
	t.Parallel()

	dl := newFakeDownloader(map[string][]byte{"t": {'c', 'a', 'f', 0xE9}})
	e := NewExtractor(nil, dl, ExtractorOptions{})
	parts, ok := e.Extract(context.Background(), channel.Message{Document: &channel.File{ID: "t", Mime: "text/plain", Name: "menu.txt"}})
	if !ok || len(parts) != 1 || parts[0].Text != "café" {
		t.Fatalf("unexpected parts: %+v", parts)
	}
	if parts[0].Attachment {
		t.Fatal("plain text documents merge like ordinary text")
	}
}

func TestExtractImageDocumentTreatedAsPhoto(t *testing.T) {
	t.Parallel()

	dl := newFakeDownloader(map[string][]byte{"img": []byte("png")})
	e := NewExtractor(nil, dl, ExtractorOptions{})
	parts, ok := e.Extract(context.Background(), channel.Message{Document: &channel.File{ID: "img", Mime: "image/png", Name: "shot.PNG"}})
	if !ok || len(parts) != 1 || parts[0].Kind != conversation.PartImage || parts[0].Mime != "image/png" {
		t.Fatalf("unexpected parts: %+v", parts)
	}
}

func TestExtractUnsupportedDocumentKeepsCaption(t *testing.T) {
	t.Parallel()

	e := NewExtractor(nil, newFakeDownloader(nil), ExtractorOptions{})
	parts, ok := e.Extract(context.Background(), channel.Message{
		Text:     "archive",
		Document: &channel.File{ID: "z", Mime: "application/zip", Name: "a.zip"},
	})
	if !ok || len(parts) != 1 || parts[0].Text != "archive" {
		t.Fatalf("unexpected parts: %+v", parts)
	}
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(docxBodyPart)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
