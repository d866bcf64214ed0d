package core

import (
	"container/heap"
	"sync"
	"time"
)

// refreshFunc runs when a scheduled deadline fires. It receives the
// profile ID the entry was registered under.
type refreshFunc func(profileID string)

type refreshEntry struct {
	profileID string
	runAt     time.Time
	index     int
	cancelled bool
}

type refreshHeap []*refreshEntry

func (h refreshHeap) Len() int           { return len(h) }
func (h refreshHeap) Less(i, j int) bool { return h[i].runAt.Before(h[j].runAt) }

func (h refreshHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *refreshHeap) Push(x any) {
	entry := x.(*refreshEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *refreshHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// RefreshScheduler fires credential refreshes at their deadlines. A
// single goroutine sleeps until the earliest entry; rescheduling a
// profile replaces its pending entry. Deadlines already in the past
// fire immediately.
type RefreshScheduler struct {
	mu      sync.Mutex
	entries refreshHeap
	byID    map[string]*refreshEntry
	run     refreshFunc
	clock   func() time.Time
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	stopped bool
}

func NewRefreshScheduler(run refreshFunc, clock func() time.Time) *RefreshScheduler {
	if clock == nil {
		clock = time.Now
	}
	scheduler := &RefreshScheduler{
		byID:  make(map[string]*refreshEntry),
		run:   run,
		clock: clock,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go scheduler.loop()
	return scheduler
}

// Schedule registers or replaces the refresh deadline for profileID.
func (s *RefreshScheduler) Schedule(profileID string, runAt time.Time) {
	if profileID == "" {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if existing, ok := s.byID[profileID]; ok {
		existing.runAt = runAt
		heap.Fix(&s.entries, existing.index)
	} else {
		entry := &refreshEntry{profileID: profileID, runAt: runAt}
		heap.Push(&s.entries, entry)
		s.byID[profileID] = entry
	}
	s.mu.Unlock()
	s.poke()
}

// Cancel drops the pending deadline for profileID, if any.
func (s *RefreshScheduler) Cancel(profileID string) {
	s.mu.Lock()
	entry, ok := s.byID[profileID]
	if ok {
		entry.cancelled = true
		delete(s.byID, profileID)
	}
	s.mu.Unlock()
	if ok {
		s.poke()
	}
}

// Pending reports whether profileID has a scheduled refresh.
func (s *RefreshScheduler) Pending(profileID string) bool {
	s.mu.Lock()
	_, ok := s.byID[profileID]
	s.mu.Unlock()
	return ok
}

// Stop terminates the scheduler loop and discards pending entries. It
// blocks until the loop has exited.
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	s.entries = nil
	s.byID = make(map[string]*refreshEntry)
	s.mu.Unlock()
	close(s.stop)
	<-s.done
}

func (s *RefreshScheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *RefreshScheduler) loop() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		entry, wait := s.next()
		if entry != nil {
			go s.run(entry.profileID)
			continue
		}
		if wait < 0 {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}

// next pops the earliest due entry, or returns the wait until the
// earliest pending one. wait < 0 means the heap is empty.
func (s *RefreshScheduler) next() (*refreshEntry, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for s.entries.Len() > 0 {
		head := s.entries[0]
		if head.cancelled {
			heap.Pop(&s.entries)
			continue
		}
		if head.runAt.After(now) {
			return nil, head.runAt.Sub(now)
		}
		heap.Pop(&s.entries)
		delete(s.byID, head.profileID)
		return head, 0
	}
	return nil, -1
}
