package media

import (
	"context"
	"log/slog"
	"strings"

	"github.com/memohai/mimic/internal/channel"
	"github.com/memohai/mimic/internal/conversation"
	"github.com/memohai/mimic/internal/metrics"
)

// Extractor converts platform messages into transcript content parts.
type Extractor struct {
	logger      *slog.Logger
	downloader  channel.MediaDownloader
	transcriber Transcriber
	renderer    PageRenderer
	cache       *DocumentCache
	maxPages    int
}

// ExtractorOptions wires the optional collaborators of an Extractor.
type ExtractorOptions struct {
	// Transcriber handles voice, audio and video notes. Nil disables
	// transcription.
	Transcriber Transcriber
	// Renderer rasterizes PDFs. Nil skips PDF documents.
	Renderer PageRenderer
	Cache    *DocumentCache
	MaxPages int
}

// NewExtractor creates an Extractor downloading media through downloader.
func NewExtractor(log *slog.Logger, downloader channel.MediaDownloader, opts ExtractorOptions) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = MaxPDFPages
	}
	return &Extractor{
		logger:      log.With(slog.String("component", "extractor")),
		downloader:  downloader,
		transcriber: opts.Transcriber,
		renderer:    opts.Renderer,
		cache:       opts.Cache,
		maxPages:    opts.MaxPages,
	}
}

// Extract implements conversation.Extractor. It reports false only when the
// message has no text, caption, photo, document or audio at all. An
// eligible message always yields at least one part: the placeholder stands
// in when nothing could be extracted.
func (e *Extractor) Extract(ctx context.Context, msg channel.Message) ([]conversation.Part, bool) {
	text := strings.TrimSpace(msg.Text)
	if text == "" && !msg.HasMedia() {
		return nil, false
	}
	log := e.logger.With(
		slog.String("conversation", msg.Conversation.String()),
		slog.Int("message_id", msg.ID),
	)

	if audio := audioFile(msg); audio != nil {
		if transcript := e.transcribe(ctx, log, *audio); transcript != "" {
			if text != "" {
				text += "\n"
			}
			text += transcript
		}
	}

	parts := make([]conversation.Part, 0, 2)
	if text != "" {
		parts = append(parts, conversation.TextPart(text))
	}
	if msg.Photo != nil {
		if data, err := e.download(ctx, *msg.Photo); err != nil {
			log.Warn("photo download failed", slog.Any("error", err))
		} else {
			parts = append(parts, conversation.ImagePart("image/jpeg", data, groupOf(*msg.Photo)))
			metrics.ExtractedPartsTotal.WithLabelValues("photo").Inc()
		}
	}
	if msg.Document != nil {
		parts = append(parts, e.documentParts(ctx, log, *msg.Document)...)
	}
	if len(parts) == 0 {
		parts = append(parts, conversation.TextPart(conversation.PlaceholderText))
		metrics.ExtractedPartsTotal.WithLabelValues("placeholder").Inc()
	}
	return parts, true
}

func audioFile(msg channel.Message) *channel.File {
	switch {
	case msg.Voice != nil:
		return msg.Voice
	case msg.Audio != nil:
		return msg.Audio
	case msg.VideoNote != nil:
		return msg.VideoNote
	default:
		return nil
	}
}

// transcribe returns the transcript or "" on any failure.
func (e *Extractor) transcribe(ctx context.Context, log *slog.Logger, file channel.File) string {
	if e.transcriber == nil {
		log.Debug("transcription disabled, audio ignored")
		return ""
	}
	data, err := e.download(ctx, file)
	if err != nil {
		log.Warn("audio download failed", slog.Any("error", err))
		return ""
	}
	name := file.Name
	if strings.TrimSpace(name) == "" {
		name = "audio.ogg"
	}
	transcript, err := e.transcriber.Transcribe(ctx, data, name)
	if err != nil {
		log.Warn("transcription failed", slog.Any("error", err))
		return ""
	}
	transcript = strings.TrimSpace(transcript)
	if transcript != "" {
		log.Info("audio transcribed", slog.Int("chars", len(transcript)))
		metrics.ExtractedPartsTotal.WithLabelValues("transcript").Inc()
	}
	return transcript
}

func (e *Extractor) documentParts(ctx context.Context, log *slog.Logger, doc channel.File) []conversation.Part {
	kind := ClassifyDocument(doc.Mime, doc.Name)
	log = log.With(slog.String("document", doc.Name), slog.String("kind", string(kind)))
	switch kind {
	case DocumentImage:
		data, err := e.download(ctx, doc)
		if err != nil {
			log.Warn("image document download failed", slog.Any("error", err))
			return nil
		}
		metrics.ExtractedPartsTotal.WithLabelValues("image_document").Inc()
		return []conversation.Part{conversation.ImagePart(normalizeMime(doc.Mime), data, groupOf(doc))}
	case DocumentPDF:
		pages, err := e.pdfPages(ctx, doc)
		if err != nil {
			log.Warn("pdf render failed", slog.Any("error", err))
			return nil
		}
		parts := make([]conversation.Part, 0, len(pages))
		for _, page := range pages {
			parts = append(parts, conversation.DocumentPage("image/jpeg", page, groupOf(doc)))
		}
		metrics.ExtractedPartsTotal.WithLabelValues("pdf_page").Add(float64(len(parts)))
		return parts
	case DocumentWord:
		text, err := e.wordText(ctx, doc)
		if err != nil {
			log.Warn("word extraction failed", slog.Any("error", err))
			return nil
		}
		metrics.ExtractedPartsTotal.WithLabelValues("word").Inc()
		return []conversation.Part{conversation.DocumentText(text, groupOf(doc))}
	case DocumentHTML, DocumentText:
		data, err := e.download(ctx, doc)
		if err != nil {
			log.Warn("text document download failed", slog.Any("error", err))
			return nil
		}
		var text string
		if kind == DocumentHTML {
			text = HTMLToMarkdown(data)
		} else {
			text = DecodeText(data)
		}
		text = strings.TrimSpace(truncateText(text, MaxDocumentTextBytes))
		if text == "" {
			return nil
		}
		metrics.ExtractedPartsTotal.WithLabelValues("text_document").Inc()
		return []conversation.Part{conversation.TextPart(text)}
	default:
		log.Debug("unsupported document ignored", slog.String("mime", doc.Mime))
		return nil
	}
}

func (e *Extractor) pdfPages(ctx context.Context, doc channel.File) ([][]byte, error) {
	id := groupOf(doc)
	if pages, ok := e.cache.Pages(ctx, id); ok {
		metrics.RecordDocumentCache(string(DocumentPDF), true)
		return pages, nil
	}
	metrics.RecordDocumentCache(string(DocumentPDF), false)
	if e.renderer == nil {
		return nil, ErrRendererUnavailable
	}
	data, err := e.download(ctx, doc)
	if err != nil {
		return nil, err
	}
	pages, err := e.renderer.RenderPages(ctx, data, e.maxPages)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	if err := e.cache.PutPages(ctx, id, pages); err != nil {
		e.logger.Warn("cache pdf pages failed", slog.String("document", id), slog.Any("error", err))
	}
	return pages, nil
}

func (e *Extractor) wordText(ctx context.Context, doc channel.File) (string, error) {
	id := groupOf(doc)
	if text, ok := e.cache.Text(ctx, id); ok {
		metrics.RecordDocumentCache(string(DocumentWord), true)
		return text, nil
	}
	metrics.RecordDocumentCache(string(DocumentWord), false)
	data, err := e.download(ctx, doc)
	if err != nil {
		return "", err
	}
	text, err := ExtractDocxText(data)
	if err != nil {
		return "", err
	}
	text = truncateText(text, MaxDocumentTextBytes)
	if err := e.cache.PutText(ctx, id, text); err != nil {
		e.logger.Warn("cache word text failed", slog.String("document", id), slog.Any("error", err))
	}
	return text, nil
}

func (e *Extractor) download(ctx context.Context, file channel.File) ([]byte, error) {
	if e.downloader == nil {
		return nil, channel.ErrNotConnected
	}
	return e.downloader.DownloadMedia(ctx, file)
}

// groupOf returns the stable identity shared by all parts of one file.
func groupOf(file channel.File) string {
	if id := strings.TrimSpace(file.UniqueID); id != "" {
		return id
	}
	return strings.TrimSpace(file.ID)
}
