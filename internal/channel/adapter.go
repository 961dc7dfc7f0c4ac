package channel

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned when the transport has no live session.
	ErrNotConnected = errors.New("channel transport not connected")
	// ErrEmptyMessage is returned when sending blank text.
	ErrEmptyMessage = errors.New("message is required")
)

// InboundHandler is invoked for every message received from the platform.
type InboundHandler func(ctx context.Context, msg Message)

// HistoryReader returns recent messages of a conversation, newest first.
type HistoryReader interface {
	FetchHistory(ctx context.Context, conv Conversation, limit int) ([]Message, error)
}

// MediaDownloader fetches attachment bytes.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, file File) ([]byte, error)
}

// Sender delivers text into a conversation, optionally as a reply.
type Sender interface {
	SendText(ctx context.Context, conv Conversation, text string, replyTo int) (Message, error)
}

// ActivitySignaler shows a transient presence indicator.
type ActivitySignaler interface {
	SignalActivity(ctx context.Context, conv Conversation, activity Activity) error
}

// Transport is the full set of platform capabilities the pipeline uses.
type Transport interface {
	HistoryReader
	MediaDownloader
	Sender
	ActivitySignaler
}

// Receiver delivers inbound messages until stopped.
type Receiver interface {
	Start(ctx context.Context, handler InboundHandler) error
	Stop(ctx context.Context) error
}
