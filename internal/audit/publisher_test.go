package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "frontdesk/pkg/domain"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), Event{Action: ActionRegistered, Subject: "c-1"})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionRegistered, events[0].Action)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionPickedUp, Subject: "c-2"}))
	}
	pub.Close()

	events, err := store.ListBySubject(context.Background(), "c-2")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterCloseFallsBackToSync(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionNoticeCreated, Subject: "n-1"}))
	events, err := store.ListBySubject(context.Background(), "n-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPublisher_BufferFullDoesNotBlock(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), Event{Action: ActionRegistered})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionRegistered, Subject: "c-3"}))
	after := time.Now()

	events, err := pub.List(context.Background(), "c-3")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionPickedUp, Subject: "c-4", Timestamp: custom}))
	events, err := pub.List(context.Background(), "c-4")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, custom, events[0].Timestamp)
}

func TestInMemoryStore_ListRecentScopesByCondominium(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	condoA := id.CondominiumID(uuid.New())
	condoB := id.CondominiumID(uuid.New())

	for i, condo := range []id.CondominiumID{condoA, condoB, condoA, condoA} {
		require.NoError(t, store.Append(ctx, Event{CondominiumID: condo, Subject: string(rune('a' + i))}))
	}

	recent, err := store.ListRecent(ctx, condoA, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].Subject)
	assert.Equal(t, "c", recent[1].Subject)
}
