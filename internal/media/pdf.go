package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

// FitzRenderer renders PDF pages with MuPDF and re-encodes them as JPEG.
type FitzRenderer struct {
	MaxDimension int
	Quality      int
}

// NewFitzRenderer returns a renderer with the package defaults.
func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{MaxDimension: MaxPageDimension, Quality: PageJPEGQuality}
}

// RenderPages implements PageRenderer.
func (r *FitzRenderer) RenderPages(ctx context.Context, pdf []byte, maxPages int) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if maxPages > 0 && count > maxPages {
		count = maxPages
	}
	if count == 0 {
		return nil, ErrEmptyDocument
	}
	maxDim := r.MaxDimension
	if maxDim <= 0 {
		maxDim = MaxPageDimension
	}
	quality := r.Quality
	if quality <= 0 {
		quality = PageJPEGQuality
	}
	pages := make([][]byte, 0, count)
	for n := 0; n < count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n+1, err)
		}
		fitted := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", n+1, err)
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}
