package plugin

import (
	"sync"

	"github.com/earlink/earlink-go/pkg/fault"
)

// FailureTracker remembers plugins that failed unrecoverably. Connection
// attempts for a marked plugin fail fast until Reset.
type FailureTracker struct {
	mu     sync.RWMutex
	failed map[string]error
}

// NewFailureTracker creates an empty tracker.
func NewFailureTracker() *FailureTracker {
	return &FailureTracker{failed: make(map[string]error)}
}

// MarkUnrecoverable records that plugin id cannot recover from err.
func (t *FailureTracker) MarkUnrecoverable(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed[id] = err
}

// IsUnrecoverable reports whether id is marked.
func (t *FailureTracker) IsUnrecoverable(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.failed[id]
	return ok
}

// Check returns an unrecoverable-kind error if id is marked.
func (t *FailureTracker) Check(id string) error {
	t.mu.RLock()
	cause, ok := t.failed[id]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return fault.Wrap(fault.KindUnrecoverable, cause, "")
}

// Reset clears the mark for id.
func (t *FailureTracker) Reset(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failed, id)
}

// ResetAll clears every mark.
func (t *FailureTracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = make(map[string]error)
}

// Marked returns the ids currently marked.
func (t *FailureTracker) Marked() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.failed))
	for id := range t.failed {
		out = append(out, id)
	}
	return out
}
