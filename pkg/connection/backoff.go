package connection

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Retry defaults.
const (
	// DefaultBaseDelay is the delay after the first failed attempt.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxDelay caps the retry delay.
	DefaultMaxDelay = 8 * time.Second

	// DefaultMaxAttempts is the number of connect attempts before giving up.
	DefaultMaxAttempts = 3
)

// RetryPolicy bounds connectWithRetry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Delay returns the wait after failed attempt n (1-based):
// min(base * 2^(n-1), max).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// JitterFactor is the default maximum jitter as a fraction of the delay.
const JitterFactor = 0.25

// Backoff produces jittered exponential delays for open-ended polling
// loops, such as rediscovering bridges. It is safe for concurrent use.
type Backoff struct {
	mu sync.Mutex

	policy   RetryPolicy
	jitter   float64
	attempts int
	rng      *rand.Rand
}

// BackoffConfig customizes a Backoff.
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// NewBackoff creates a backoff calculator.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Backoff{
		policy: RetryPolicy{BaseDelay: cfg.Initial, MaxDelay: cfg.Max}.withDefaults(),
		jitter: cfg.Jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay with jitter and advances the attempt count.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	return b.addJitter(b.policy.Delay(b.attempts))
}

// Current returns the base delay of the next call to Next.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.policy.Delay(b.attempts + 1)
}

// Reset restarts the sequence. Call it after a success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*b.rng.Float64())
}
