package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const documentNamespace = "documents"

type pageManifest struct {
	Pages int `json:"pages"`
}

// DocumentCache stores rendered pages and extracted text keyed by the
// platform's stable document identifier.
type DocumentCache struct {
	logger *slog.Logger
	store  StorageProvider
}

// NewDocumentCache wraps store. A nil store disables caching.
func NewDocumentCache(log *slog.Logger, store StorageProvider) *DocumentCache {
	if log == nil {
		log = slog.Default()
	}
	return &DocumentCache{
		logger: log.With(slog.String("component", "document_cache")),
		store:  store,
	}
}

// Pages returns cached page images for id.
func (c *DocumentCache) Pages(ctx context.Context, id string) ([][]byte, bool) {
	if c == nil || c.store == nil || strings.TrimSpace(id) == "" {
		return nil, false
	}
	raw, err := c.read(ctx, documentKey(id, "manifest.json"))
	if err != nil {
		return nil, false
	}
	var manifest pageManifest
	if err := json.Unmarshal(raw, &manifest); err != nil || manifest.Pages <= 0 {
		c.logger.Warn("invalid page manifest", slog.String("document", id), slog.Any("error", err))
		return nil, false
	}
	pages := make([][]byte, 0, manifest.Pages)
	for n := 1; n <= manifest.Pages; n++ {
		page, err := c.read(ctx, documentKey(id, pageName(n)))
		if err != nil {
			c.logger.Warn("cached page unreadable", slog.String("document", id), slog.Int("page", n), slog.Any("error", err))
			return nil, false
		}
		pages = append(pages, page)
	}
	return pages, true
}

// PutPages stores page images for id. The manifest is written last so a
// partially written entry is never treated as a hit.
func (c *DocumentCache) PutPages(ctx context.Context, id string, pages [][]byte) error {
	if c == nil || c.store == nil || strings.TrimSpace(id) == "" {
		return nil
	}
	for i, page := range pages {
		if err := c.store.Put(ctx, documentKey(id, pageName(i+1)), bytes.NewReader(page)); err != nil {
			return fmt.Errorf("cache page %d: %w", i+1, err)
		}
	}
	manifest, err := json.Marshal(pageManifest{Pages: len(pages)})
	if err != nil {
		return err
	}
	return c.store.Put(ctx, documentKey(id, "manifest.json"), bytes.NewReader(manifest))
}

// Text returns cached extracted text for id.
func (c *DocumentCache) Text(ctx context.Context, id string) (string, bool) {
	if c == nil || c.store == nil || strings.TrimSpace(id) == "" {
		return "", false
	}
	raw, err := c.read(ctx, documentKey(id, "text.txt"))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// PutText stores extracted text for id.
func (c *DocumentCache) PutText(ctx context.Context, id, text string) error {
	if c == nil || c.store == nil || strings.TrimSpace(id) == "" {
		return nil
	}
	return c.store.Put(ctx, documentKey(id, "text.txt"), strings.NewReader(text))
}

func (c *DocumentCache) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := c.store.Open(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrAssetNotFound) {
			c.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, MaxAssetBytes))
}

func pageName(n int) string {
	return fmt.Sprintf("page-%03d.jpg", n)
}

// documentKey builds "documents/<id>/<name>", hashing ids that contain
// characters unsafe for file names.
func documentKey(id, name string) string {
	return documentNamespace + "/" + safeSegment(id) + "/" + name
}

func safeSegment(id string) string {
	id = strings.TrimSpace(id)
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			sum := sha256.Sum256([]byte(id))
			return hex.EncodeToString(sum[:16])
		}
	}
	return id
}
