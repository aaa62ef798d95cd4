// Package timeline provides sources of the host environment's recorded network activity.
package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/truecost/backend/internal/domain"
)

// MemoryTimeline is a thread-safe in-memory list of recorded requests
type MemoryTimeline struct {
	entries []domain.TimelineEntry
	mutex   sync.RWMutex
}

// NewMemoryTimeline creates a timeline seeded with the given entries
func NewMemoryTimeline(entries ...domain.TimelineEntry) *MemoryTimeline {
	t := &MemoryTimeline{}
	t.Record(entries...)
	return t
}

// Record appends requests as the host environment performs them.
// Entries without a start time are stamped with the current time.
func (t *MemoryTimeline) Record(entries ...domain.TimelineEntry) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, e := range entries {
		if e.StartedAt.IsZero() {
			e.StartedAt = time.Now()
		}
		t.entries = append(t.entries, e)
	}
}

// Entries returns a copy of the recorded requests in recording order
func (t *MemoryTimeline) Entries(ctx context.Context) ([]domain.TimelineEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mutex.RLock()
	defer t.mutex.RUnlock()

	out := make([]domain.TimelineEntry, len(t.entries))
	copy(out, t.entries)
	return out, nil
}

// Len returns the number of recorded requests
func (t *MemoryTimeline) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.entries)
}
