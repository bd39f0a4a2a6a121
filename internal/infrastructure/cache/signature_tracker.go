package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultTrackerSize = 10000

type failureWindow struct {
	first time.Time
	count int
}

// SignatureFailureTracker counts consecutive bad webhook signatures per integration.
// A streak older than the window starts over; idle entries age out of the LRU.
type SignatureFailureTracker struct {
	mu      sync.Mutex
	window  time.Duration
	entries *expirable.LRU[uuid.UUID, failureWindow]
}

// NewSignatureFailureTracker creates a tracker with the given rolling window
func NewSignatureFailureTracker(window time.Duration, size int) *SignatureFailureTracker {
	if window <= 0 {
		window = time.Hour
	}
	if size <= 0 {
		size = defaultTrackerSize
	}
	return &SignatureFailureTracker{
		window:  window,
		entries: expirable.NewLRU[uuid.UUID, failureWindow](size, nil, window),
	}
}

// RecordFailure returns the streak length including this failure
func (t *SignatureFailureTracker) RecordFailure(integrationID uuid.UUID, at time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.entries.Get(integrationID)
	if !ok || at.Sub(current.first) > t.window {
		current = failureWindow{first: at}
	}
	current.count++
	t.entries.Add(integrationID, current)
	return current.count
}

// Reset clears the streak after a verified delivery or an operator reset
func (t *SignatureFailureTracker) Reset(integrationID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries.Remove(integrationID)
}
