package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/mimic/internal/channel"
)

func msg(id int, text string) channel.Message {
	return channel.Message{ID: id, Text: text}
}

func collect(t *testing.T) (Handler, <-chan Batch) {
	t.Helper()
	ch := make(chan Batch, 16)
	return func(_ context.Context, b Batch) error {
		ch <- b
		return nil
	}, ch
}

func receive(t *testing.T, ch <-chan Batch) Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return Batch{}
	}
}

func stop(t *testing.T, a *Aggregator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
}

func TestSubmitCoalescesWithinWindow(t *testing.T) {
	t.Parallel()

	handler, batches := collect(t)
	a := New(nil, handler)
	defer stop(t, a)
	key := channel.Conversation{ChatID: 42}

	id1, created, err := a.Submit(key, msg(1, "hi"), 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, created)
	id2, created, err := a.Submit(key, msg(2, "there"), 0)
	require.NoError(t, err)
	assert.False(t, created, "second message must ride on the existing timer")
	assert.Equal(t, id1, id2)

	b := receive(t, batches)
	assert.Equal(t, id1, b.ID)
	assert.Equal(t, []int{1, 2}, b.MessageIDs())
	assert.Equal(t, 2, b.ReplyTarget().ID)
	assert.False(t, b.Escalated)
}

func TestSubmitAfterFlushStartsNewBatch(t *testing.T) {
	t.Parallel()

	handler, batches := collect(t)
	a := New(nil, handler)
	defer stop(t, a)
	key := channel.Conversation{ChatID: 7}

	first, _, err := a.Submit(key, msg(1, "a"), 10*time.Millisecond)
	require.NoError(t, err)
	b1 := receive(t, batches)

	second, created, err := a.Submit(key, msg(2, "b"), 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first, second)
	b2 := receive(t, batches)

	assert.Equal(t, []int{1}, b1.MessageIDs())
	assert.Equal(t, []int{2}, b2.MessageIDs())
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	handler, batches := collect(t)
	a := New(nil, handler)
	defer stop(t, a)
	topicA := channel.Conversation{ChatID: -100, TopicID: 1}
	topicB := channel.Conversation{ChatID: -100, TopicID: 2}

	_, _, err := a.Submit(topicA, msg(1, "a"), time.Hour)
	require.NoError(t, err)
	_, created, err := a.Submit(topicB, msg(2, "b"), 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, created)

	b := receive(t, batches)
	assert.Equal(t, topicB, b.Key)
	assert.Equal(t, 1, a.Stats().PendingBatches)
}

func TestEscalateFlushesImmediatelyWithMentionTarget(t *testing.T) {
	t.Parallel()

	handler, batches := collect(t)
	a := New(nil, handler)
	defer stop(t, a)
	key := channel.Conversation{ChatID: -5}

	assert.False(t, a.Escalate(key, msg(9, "nobody")), "escalation needs a pending batch")

	id, _, err := a.Submit(key, msg(1, "chatter"), time.Hour)
	require.NoError(t, err)
	mention := msg(2, "@mimic_bot hey")
	_, _, err = a.Submit(key, mention, time.Hour)
	require.NoError(t, err)
	_, _, err = a.Submit(key, msg(3, "more chatter"), time.Hour)
	require.NoError(t, err)
	require.True(t, a.Escalate(key, mention))

	b := receive(t, batches)
	assert.Equal(t, id, b.ID)
	assert.True(t, b.Escalated)
	assert.Equal(t, 2, b.ReplyTarget().ID)
	assert.Equal(t, []int{1, 2, 3}, b.MessageIDs())
}

func TestSubmitEscalatedTargetsItsOwnBatch(t *testing.T) {
	t.Parallel()

	handler, batches := collect(t)
	a := New(nil, handler)
	defer stop(t, a)
	key := channel.Conversation{ChatID: -5, TopicID: 3}

	// A mention that opens a batch flushes alone, even if the next message
	// arrives right after the zero-delay flush.
	first := msg(1, "@mimic_bot you there?")
	id, created, err := a.SubmitEscalated(key, first)
	require.NoError(t, err)
	assert.True(t, created)
	b1 := receive(t, batches)
	assert.Equal(t, id, b1.ID)
	assert.Equal(t, []int{1}, b1.MessageIDs())
	assert.Equal(t, 1, b1.ReplyTarget().ID)

	other, created, err := a.Submit(key, msg(2, "unrelated"), time.Hour)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, id, other)
	assert.Equal(t, 1, a.Stats().PendingBatches, "a later batch is not escalated by an earlier mention")

	// A mention joining a pending batch escalates that batch.
	second := msg(3, "@mimic_bot and now?")
	joined, created, err := a.SubmitEscalated(key, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, other, joined)
	b2 := receive(t, batches)
	assert.Equal(t, []int{2, 3}, b2.MessageIDs())
	assert.True(t, b2.Escalated)
	assert.Equal(t, 3, b2.ReplyTarget().ID)
}

func TestFlushChecksBatchIdentity(t *testing.T) {
	t.Parallel()

	handler, batches := collect(t)
	a := New(nil, handler)
	defer stop(t, a)
	key := channel.Conversation{ChatID: 1}

	id, _, err := a.Submit(key, msg(1, "x"), time.Hour)
	require.NoError(t, err)

	_, ok := a.Flush(key, "stale")
	assert.False(t, ok, "stale timer must not flush a newer batch")

	b, ok := a.Flush(key, id)
	require.True(t, ok)
	assert.Equal(t, id, b.ID)

	_, ok = a.Flush(key, id)
	assert.False(t, ok, "second flush of the same batch is a no-op")

	got := receive(t, batches)
	assert.Equal(t, id, got.ID)
}

func TestLaneProcessesBatchesInFlushOrder(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	var running, maxRunning int
	done := make(chan struct{}, 3)
	a := New(nil, func(_ context.Context, b Batch) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		if b.Messages[0].Text == "first" {
			<-release
		}
		mu.Lock()
		order = append(order, b.Messages[0].Text)
		running--
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	defer stop(t, a)
	key := channel.Conversation{ChatID: 3}

	for _, text := range []string{"first", "second", "third"} {
		id, _, err := a.Submit(key, msg(len(text), text), time.Hour)
		require.NoError(t, err)
		_, ok := a.Flush(key, id)
		require.True(t, ok)
	}
	assert.Equal(t, 1, a.Stats().ActiveLanes)
	close(release)
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("lane stalled")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, 1, maxRunning)
}

func TestHandlerFailuresDoNotBreakTheKey(t *testing.T) {
	t.Parallel()

	results := make(chan int, 4)
	a := New(nil, func(_ context.Context, b Batch) error {
		id := b.Messages[0].ID
		results <- id
		switch id {
		case 1:
			panic("boom")
		case 2:
			return errors.New("backend down")
		}
		return nil
	})
	defer stop(t, a)
	key := channel.Conversation{ChatID: 11}

	for id := 1; id <= 3; id++ {
		_, _, err := a.Submit(key, msg(id, "m"), 0)
		require.NoError(t, err)
		select {
		case got := <-results:
			assert.Equal(t, id, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("batch %d not processed", id)
		}
	}
}

func TestStopDropsPendingAndRejectsSubmit(t *testing.T) {
	t.Parallel()

	handler, batches := collect(t)
	a := New(nil, handler)
	key := channel.Conversation{ChatID: 8}

	_, _, err := a.Submit(key, msg(1, "pending"), time.Hour)
	require.NoError(t, err)
	stop(t, a)

	_, _, err = a.Submit(key, msg(2, "late"), 0)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, Stats{}, a.Stats())

	select {
	case b := <-batches:
		t.Fatalf("dropped batch was processed: %+v", b)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopWaitsForRunningLane(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	finished := make(chan struct{})
	a := New(nil, func(_ context.Context, _ Batch) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return nil
	})
	key := channel.Conversation{ChatID: 9}
	_, _, err := a.Submit(key, msg(1, "x"), 0)
	require.NoError(t, err)
	<-started

	stop(t, a)
	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the running batch finished")
	}
}

func TestReplyTargetDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, channel.Message{}, Batch{}.ReplyTarget())
	b := Batch{Messages: []channel.Message{msg(1, "a"), msg(2, "b")}}
	assert.Equal(t, 2, b.ReplyTarget().ID)
	b.Target = msg(1, "a")
	assert.Equal(t, 1, b.ReplyTarget().ID)
}
