package console

import (
	"strconv"
	"sync"
	"time"
)

// attemptLimiter tracks failed attempts per key and enforces exponential
// backoff once maxFailures is reached. Keys are normalized emails or client
// addresses, never credentials.
type attemptLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*attemptRecord
	maxFailures int
	baseLockout time.Duration
	maxLockout  time.Duration
	now         func() time.Time
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

const (
	// otpMaxFailures is the number of wrong codes before lockout begins.
	otpMaxFailures = 5
	otpBaseLockout = 1 * time.Minute
	otpMaxLockout  = 15 * time.Minute

	// ipMaxFailures applies to the password step per client address.
	ipMaxFailures = 20
	ipBaseLockout = 1 * time.Minute
	ipMaxLockout  = 30 * time.Minute

	// attemptExpiry is how long after the last failure before a record is
	// dropped.
	attemptExpiry = 1 * time.Hour
	// sweepThreshold bounds the map before stale records are swept inline.
	sweepThreshold = 1024
)

func newAttemptLimiter(maxFailures int, base, max time.Duration) *attemptLimiter {
	return &attemptLimiter{
		attempts:    make(map[string]*attemptRecord),
		maxFailures: maxFailures,
		baseLockout: base,
		maxLockout:  max,
		now:         time.Now,
	}
}

// check reports whether key is locked out and for how long.
func (rl *attemptLimiter) check(key string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[key]
	if !ok {
		return false, 0
	}
	now := rl.now()
	if now.Sub(rec.lastFailure) > attemptExpiry {
		delete(rl.attempts, key)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

func (rl *attemptLimiter) recordFailure(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.attempts) >= sweepThreshold {
		rl.sweepLocked(now)
	}
	rec, ok := rl.attempts[key]
	if !ok {
		rec = &attemptRecord{}
		rl.attempts[key] = rec
	}
	rec.failures++
	rec.lastFailure = now

	if rec.failures >= rl.maxFailures {
		// baseLockout * 2^(failures - maxFailures), capped.
		lockout := rl.baseLockout
		for i := 0; i < rec.failures-rl.maxFailures; i++ {
			lockout *= 2
			if lockout > rl.maxLockout {
				lockout = rl.maxLockout
				break
			}
		}
		rec.lockedUntil = now.Add(lockout)
	}
}

func (rl *attemptLimiter) recordSuccess(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}

func (rl *attemptLimiter) sweepLocked(now time.Time) {
	for key, rec := range rl.attempts {
		if now.Sub(rec.lastFailure) > attemptExpiry {
			delete(rl.attempts, key)
		}
	}
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
