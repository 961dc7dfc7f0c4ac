package media

import "errors"

var (
	// ErrAssetNotFound indicates the requested cache object does not exist.
	ErrAssetNotFound = errors.New("media asset not found")
	// ErrAssetTooLarge indicates the payload exceeds the configured max asset size.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrPathTraversal indicates a storage key attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
	// ErrRendererUnavailable indicates no PDF renderer is configured.
	ErrRendererUnavailable = errors.New("document renderer unavailable")
	// ErrEmptyDocument indicates a document produced no pages or text.
	ErrEmptyDocument = errors.New("document has no content")
)
