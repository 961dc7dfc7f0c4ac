// Package chat is the completion gateway: it talks to the language model
// backend, transcribes audio and tracks residency of demand-loaded models.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memohai/mimic/internal/conversation"
)

var (
	// ErrCompletionFailed wraps every completion backend failure.
	ErrCompletionFailed = errors.New("completion failed")
	// ErrTranscriptionUnavailable is returned when no transcription backend
	// is configured or its executable is missing.
	ErrTranscriptionUnavailable = errors.New("transcription unavailable")
	// ErrEmptyReply marks a successful call that produced no text.
	ErrEmptyReply = errors.New("empty reply")
)

// CompletionError carries the underlying cause of a failed completion.
// errors.Is(err, ErrCompletionFailed) holds for every CompletionError.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed (model %s): %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

func (e *CompletionError) Is(target error) bool {
	return target == ErrCompletionFailed
}

// Request is one completion call.
type Request struct {
	Transcript conversation.Transcript
	MaxTokens  int
	// Zero sampling values take the gateway defaults. A zero that reaches a
	// backend is sent as greedy sampling, not left to the server default.
	Temperature float32
	TopP        float32
}

// Usage reports token accounting returned by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the raw backend response.
type Result struct {
	Text         string
	Model        string
	FinishReason string
	Usage        Usage
}

// Completer is a chat completion backend.
type Completer interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (Result, error)
}

// AudioTranscriber transcribes an audio file on disk.
type AudioTranscriber interface {
	Name() string
	Model() string
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Unloader is implemented by backends whose model stays resident after use
// and can be released on demand.
type Unloader interface {
	Unload(ctx context.Context) error
}

// Residency is the load state of a demand-loaded model.
type Residency string

const (
	Unloaded Residency = "unloaded"
	Loaded   Residency = "loaded"
)

// ModelStatus describes one tracked model.
type ModelStatus struct {
	Role      string    `json:"role"`
	Backend   string    `json:"backend"`
	Model     string    `json:"model"`
	State     Residency `json:"state"`
	Unloads   int       `json:"unloads"`
	LastUsed  time.Time `json:"last_used,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}
