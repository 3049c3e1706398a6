package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome int

const (
	fail outcome = iota
	ok
)

func record(b *Breaker, seq ...outcome) {
	for _, o := range seq {
		if o == fail {
			b.RecordFailure()
		} else {
			b.RecordSuccess()
		}
	}
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		closes   int
		seq      []outcome
		wantOpen bool
	}{
		{name: "fresh breaker is closed", failures: 3, closes: 1, wantOpen: false},
		{name: "below threshold stays closed", failures: 3, closes: 1, seq: []outcome{fail, fail}, wantOpen: false},
		{name: "threshold opens", failures: 3, closes: 1, seq: []outcome{fail, fail, fail}, wantOpen: true},
		{name: "success clears the failure streak", failures: 3, closes: 1, seq: []outcome{fail, fail, ok, fail, fail}, wantOpen: false},
		{name: "one success short of closing", failures: 1, closes: 2, seq: []outcome{fail, ok}, wantOpen: true},
		{name: "success threshold closes", failures: 1, closes: 2, seq: []outcome{fail, ok, ok}, wantOpen: false},
		{name: "failure while open restarts the success count", failures: 1, closes: 2, seq: []outcome{fail, ok, fail, ok}, wantOpen: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("image-fetch", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.closes))
			record(b, tt.seq...)
			assert.Equal(t, tt.wantOpen, b.IsOpen())
		})
	}
}

func TestBreakerReportsStateChanges(t *testing.T) {
	b := New("ratelimit-redis", WithFailureThreshold(2))
	assert.Equal(t, "ratelimit-redis", b.Name())

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.Equal(t, StateChange{}, change)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened, "already open")

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerCooldownTrial(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	b := New("image-fetch", WithFailureThreshold(1), WithCooldown(10*time.Second), WithClock(func() time.Time { return now }))

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(9 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow(), "trial after cooldown")

	// A failed trial pushes the next trial a full cooldown out.
	b.RecordFailure()
	assert.False(t, b.Allow())
	now = now.Add(10 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreakerResetAndDefaults(t *testing.T) {
	b := New("blob", WithFailureThreshold(0), WithCooldown(-time.Second), WithClock(nil))
	record(b, fail, fail, fail, fail)
	assert.False(t, b.IsOpen(), "non-positive options keep the default threshold")
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerConcurrentRecords(t *testing.T) {
	b := New("image-fetch", WithFailureThreshold(50))
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordFailure()
			b.Allow()
		}()
	}
	wg.Wait()
	assert.True(t, b.IsOpen())
}
