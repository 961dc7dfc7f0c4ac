package media

import (
	"context"
	"io"
)

// StorageProvider abstracts object storage for the document cache.
type StorageProvider interface {
	// Put writes data to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error
	// Open returns a reader for the given storage key. Missing keys yield
	// ErrAssetNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// AccessPath returns a backend-specific reference for a storage key.
	AccessPath(key string) string
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// PageRenderer rasterizes PDF pages into encoded images.
type PageRenderer interface {
	// RenderPages returns up to maxPages JPEG-encoded pages in order.
	RenderPages(ctx context.Context, pdf []byte, maxPages int) ([][]byte, error)
}

// DocumentKind classifies a document attachment.
type DocumentKind string

const (
	DocumentUnknown DocumentKind = ""
	DocumentImage   DocumentKind = "image"
	DocumentPDF     DocumentKind = "pdf"
	DocumentWord    DocumentKind = "word"
	DocumentHTML    DocumentKind = "html"
	DocumentText    DocumentKind = "text"
)
