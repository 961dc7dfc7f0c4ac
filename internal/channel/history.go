package channel

import (
	"sort"
	"sync"
)

// HistoryBuffer keeps the most recent messages per conversation in memory.
// Adapters whose platform API cannot list past messages record every
// inbound and outbound message here.
type HistoryBuffer struct {
	mu       sync.RWMutex
	capacity int
	convs    map[Conversation][]Message
}

// NewHistoryBuffer creates a buffer retaining up to capacity messages per conversation.
func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = 200
	}
	return &HistoryBuffer{
		capacity: capacity,
		convs:    map[Conversation][]Message{},
	}
}

// Record stores msg. A message with an id already present replaces the
// stored copy (edits).
func (b *HistoryBuffer) Record(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.convs[msg.Conversation]
	for i := range items {
		if items[i].ID == msg.ID {
			items[i] = msg
			return
		}
	}
	items = append(items, msg)
	// Message ids increase within a chat; keep insertion order stable otherwise.
	sort.SliceStable(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if over := len(items) - b.capacity; over > 0 {
		items = append([]Message(nil), items[over:]...)
	}
	b.convs[msg.Conversation] = items
}

// Recent returns up to limit messages of conv, newest first.
func (b *HistoryBuffer) Recent(conv Conversation, limit int) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	items := b.convs[conv]
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]Message, 0, limit)
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	return out
}

// Len returns the number of stored messages for conv.
func (b *HistoryBuffer) Len(conv Conversation) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.convs[conv])
}
