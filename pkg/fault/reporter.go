package fault

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Reporter logs classified failures and keeps per-kind counters.
// One Reporter is constructed by the composition root and injected where needed;
// tests construct their own.
type Reporter struct {
	logger *slog.Logger

	mu     sync.Mutex
	counts map[Kind]int
	last   *Error
}

// NewReporter creates a reporter writing to logger. A nil logger discards output.
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reporter{
		logger: logger,
		counts: make(map[Kind]int),
	}
}

// Report classifies err, records it, and logs it at a level derived from its severity.
// It returns the classified error so callers can keep propagating it.
func (r *Reporter) Report(err error, args ...any) *Error {
	e := Classify(err)
	if e == nil {
		return nil
	}

	r.mu.Lock()
	r.counts[e.Kind]++
	r.last = e
	r.mu.Unlock()

	attrs := append([]any{
		"kind", e.Kind.String(),
		"category", e.Kind.Category().String(),
		"severity", e.Severity.String(),
		"strategy", e.Strategy.String(),
	}, args...)
	r.logger.Log(context.Background(), levelFor(e.Severity), e.Error(), attrs...)
	return e
}

// Count returns how many errors of kind have been reported.
func (r *Reporter) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// Last returns the most recently reported error.
func (r *Reporter) Last() *Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Reset clears counters.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = make(map[Kind]int)
	r.last = nil
}

func levelFor(s Severity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
