package media

import (
	"path/filepath"
	"strings"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeHTML = "text/html"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".log": true, ".csv": true, ".json": true,
}

// ClassifyDocument decides how a document is turned into content parts from
// its declared mime type and file name.
func ClassifyDocument(mime, name string) DocumentKind {
	mime = normalizeMime(mime)
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	switch {
	case strings.HasPrefix(mime, "image/") && imageExtensions[ext]:
		return DocumentImage
	case mime == mimePDF || ext == ".pdf":
		return DocumentPDF
	case mime == mimeDOCX || ext == ".docx":
		return DocumentWord
	case mime == mimeHTML || ext == ".html" || ext == ".htm":
		return DocumentHTML
	case strings.HasPrefix(mime, "text/") || textExtensions[ext]:
		return DocumentText
	default:
		return DocumentUnknown
	}
}

func normalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}
