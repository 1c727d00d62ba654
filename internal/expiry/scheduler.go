// Package expiry schedules per-key expirations on top of a single clock timer.
//
// A Scheduler keeps every pending deadline in a min-heap and arms exactly one
// timer for the earliest of them. Scheduling a key that already has a deadline
// replaces it, so there is never more than one live expiration per key.
// Callbacks run on the scheduler goroutine, outside the scheduler lock, and
// receive the generation given at scheduling time so owners can ignore
// expirations that belong to a value they have since replaced.
package expiry

import (
	"container/heap"
	"sync"
	"time"

	"github.com/viccon/sturdyc"
)

// Callback is invoked when the deadline for key passes.
type Callback func(key string, gen uint64)

// Scheduler fires a Callback for every key whose deadline has passed.
type Scheduler struct {
	clock    sturdyc.Clock
	onExpire Callback

	mu      sync.Mutex
	pending timerHeap
	byKey   map[string]*timer
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
	stopped bool
}

// New creates a Scheduler. The background goroutine is started by Schedule
// and exits once no expiration is pending, so an idle Scheduler holds no
// goroutine.
func New(clock sturdyc.Clock, onExpire Callback) *Scheduler {
	if clock == nil {
		clock = sturdyc.NewClock()
	}
	return &Scheduler{
		clock:    clock,
		onExpire: onExpire,
		byKey:    make(map[string]*timer),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Schedule arms the expiration of key at the given time, canceling any
// expiration previously scheduled for it. It is a no-op once the scheduler
// has been stopped.
func (s *Scheduler) Schedule(key string, at time.Time, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if t, ok := s.byKey[key]; ok {
		t.at = at
		t.gen = gen
		heap.Fix(&s.pending, t.index)
	} else {
		t = &timer{key: key, at: at, gen: gen}
		heap.Push(&s.pending, t)
		s.byKey[key] = t
	}

	if !s.running {
		s.running = true
		s.wg.Add(1)
		go s.run()
	}

	if s.pending[0].key == key {
		s.signal()
	}
}

// Cancel removes the pending expiration of key and reports whether one existed.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&s.pending, t.index)
	delete(s.byKey, key)
	return true
}

// CancelAll drops every pending expiration.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	s.byKey = make(map[string]*timer)
	s.signal()
}

// Pending returns the number of armed expirations.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Deadline returns the pending deadline for key.
func (s *Scheduler) Deadline(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byKey[key]
	if !ok {
		return time.Time{}, false
	}
	return t.at, true
}

// Stop cancels every pending expiration and waits for the scheduler goroutine
// to exit. After Stop returns no callback will run. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.pending = nil
	s.byKey = make(map[string]*timer)
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 || s.stopped {
			s.running = false
			s.mu.Unlock()
			return
		}
		fire, stop := s.clock.NewTimer(s.pending[0].at.Sub(s.clock.Now()))
		s.mu.Unlock()

		select {
		case <-s.done:
			stop()
			return
		case <-s.wake:
			stop()
		case <-fire:
			s.fireDue()
		}
	}
}

func (s *Scheduler) fireDue() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	var due []*timer
	for len(s.pending) > 0 && !s.pending[0].at.After(now) {
		t := heap.Pop(&s.pending).(*timer)
		delete(s.byKey, t.key)
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.onExpire(t.key, t.gen)
	}
}

type timer struct {
	key   string
	at    time.Time
	gen   uint64
	index int
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
