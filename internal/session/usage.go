package session

import (
	"sync"
	"time"

	"realtime/internal/models"
)

// UsageTracker counts per-document activity independently of whether a
// room is currently open. Entries are created on first use and kept for
// the lifetime of the process.
type UsageTracker struct {
	mu    sync.Mutex
	usage map[string]*models.DocumentUsage
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{usage: make(map[string]*models.DocumentUsage)}
}

// Record bumps the counter for the given action and returns the updated
// counters. Unknown actions only touch the timestamp.
func (t *UsageTracker) Record(documentID, action string) models.DocumentUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.usage[documentID]
	if !ok {
		u = &models.DocumentUsage{}
		t.usage[documentID] = u
	}
	switch action {
	case models.UsageView:
		u.Views++
	case models.UsageSave:
		u.Saves++
	case models.UsageExport:
		u.Exports++
	case models.UsageShare:
		u.Shares++
	case models.UsageEnhance:
		u.AIEnhance++
	}
	u.LastUpdated = time.Now()
	return *u
}

// Snapshot copies all counters for the stats surface.
func (t *UsageTracker) Snapshot() map[string]models.DocumentUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]models.DocumentUsage, len(t.usage))
	for id, u := range t.usage {
		out[id] = *u
	}
	return out
}
