package syncer

import (
	"sync"
	"time"
)

// Status sync progress status
type Status string

const (
	StatusPending Status = "pending"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// staleness window after which a progress entry is treated as absent, so a
// crashed or abandoned sync never shows perpetual "loading"
const progressStaleAfter = 5 * time.Minute

// Progress per-owner sync progress snapshot
type Progress struct {
	Percent   int       `json:"percent"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker owner-scoped progress and cancellation state. Safe for concurrent
// polling readers and a single writing sync per owner. Passed by reference to
// the coordinator; never a package-level singleton.
type Tracker struct {
	mu         sync.RWMutex
	progress   map[string]Progress
	cancelled  map[string]struct{}
	staleAfter time.Duration
	now        func() time.Time // overridable in tests
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		progress:   make(map[string]Progress),
		cancelled:  make(map[string]struct{}),
		staleAfter: progressStaleAfter,
		now:        time.Now,
	}
}

// Set records a progress update for an owner
func (t *Tracker) Set(owner string, percent int, status Status, message string) {
	t.mu.Lock()
	t.progress[owner] = Progress{
		Percent:   percent,
		Status:    status,
		Message:   message,
		UpdatedAt: t.now(),
	}
	t.mu.Unlock()
}

// Get returns the owner's progress. Absent or stale entries report as
// (idle sentinel, false).
func (t *Tracker) Get(owner string) (Progress, bool) {
	t.mu.RLock()
	p, ok := t.progress[owner]
	t.mu.RUnlock()
	if !ok || t.now().Sub(p.UpdatedAt) > t.staleAfter {
		return Progress{Status: StatusPending}, false
	}
	return p, true
}

// Clear removes the owner's progress entry
func (t *Tracker) Clear(owner string) {
	t.mu.Lock()
	delete(t.progress, owner)
	t.mu.Unlock()
}

// RequestCancel sets the owner's cancellation flag and clears progress.
// The running sync observes the flag between chunks and stops cooperatively.
func (t *Tracker) RequestCancel(owner string) {
	t.mu.Lock()
	t.cancelled[owner] = struct{}{}
	delete(t.progress, owner)
	t.mu.Unlock()
}

// Cancelled reports whether cancellation was requested for the owner
func (t *Tracker) Cancelled(owner string) bool {
	t.mu.RLock()
	_, ok := t.cancelled[owner]
	t.mu.RUnlock()
	return ok
}

// ResetCancel clears the owner's cancellation flag at the start of a new sync
func (t *Tracker) ResetCancel(owner string) {
	t.mu.Lock()
	delete(t.cancelled, owner)
	t.mu.Unlock()
}
