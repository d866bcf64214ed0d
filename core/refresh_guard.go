package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultScheduledRefreshAttempts = 3
	defaultRefreshInitialBackoff    = 30 * time.Second
	defaultRefreshMaxBackoff        = 10 * time.Minute
	defaultRefreshLockTTL           = 45 * time.Second
)

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// ProfileLocker serializes credential refreshes per profile so a
// scheduled refresh racing a manual one never issues two network calls.
type ProfileLocker interface {
	Acquire(ctx context.Context, profileID string, ttl time.Duration) (LockHandle, error)
}

type RefreshBackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRefreshInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRefreshMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type MemoryProfileLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryProfileLocker() *MemoryProfileLocker {
	return &MemoryProfileLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryProfileLocker) Acquire(_ context.Context, profileID string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: profile locker is not configured")
	}
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, fmt.Errorf("core: profile id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultRefreshLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[profileID]; ok && now.Before(until) {
		return nil, fmt.Errorf("core: refresh already in progress for profile %q", profileID)
	}
	l.locks[profileID] = now.Add(ttl)
	return &memoryLockHandle{locker: l, profileID: profileID}, nil
}

type memoryLockHandle struct {
	locker    *MemoryProfileLocker
	profileID string
	once      sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.profileID)
		h.locker.mu.Unlock()
	})
	return nil
}
