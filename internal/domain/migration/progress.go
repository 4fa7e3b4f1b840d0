package migration

import (
	"sync"
	"time"
)

const listenerBuffer = 16

type jobState struct {
	snapshot  Progress
	listeners map[chan Progress]struct{}
	terminal  bool
	updatedAt time.Time
}

// Tracker multicasts job progress to subscribers and retains terminal
// snapshots so consumers arriving after completion still see the outcome.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*jobState
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*jobState)}
}

// Register makes a job visible to subscribers before it produces progress.
func (t *Tracker) Register(p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[p.JobID] = &jobState{
		snapshot:  p,
		listeners: make(map[chan Progress]struct{}),
		updatedAt: time.Now().UTC(),
	}
}

// Publish records the latest progress and fans it out. Slow subscribers
// whose buffers are full miss intermediate events but never the snapshot.
// A terminal status closes every subscriber channel after delivery.
func (t *Tracker) Publish(p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.jobs[p.JobID]
	if !ok || st.terminal {
		return
	}

	st.snapshot = p
	st.updatedAt = time.Now().UTC()

	for ch := range st.listeners {
		select {
		case ch <- p:
		default:
		}
	}

	if p.Status.IsTerminal() {
		st.terminal = true
		for ch := range st.listeners {
			close(ch)
		}
		st.listeners = make(map[chan Progress]struct{})
	}
}

// Subscribe returns a channel that replays the latest snapshot first and
// then streams subsequent events. For an already-terminal job the channel
// carries the final snapshot and is closed. Callers must invoke the cancel
// func when they stop consuming; the channel is closed by the tracker when
// the job reaches a terminal status.
func (t *Tracker) Subscribe(jobID string) (<-chan Progress, func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.jobs[jobID]
	if !ok {
		return nil, nil, false
	}

	ch := make(chan Progress, listenerBuffer)
	ch <- st.snapshot

	if st.terminal {
		close(ch)
		return ch, func() {}, true
	}

	st.listeners[ch] = struct{}{}
	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if cur, ok := t.jobs[jobID]; ok {
			delete(cur.listeners, ch)
		}
	}
	return ch, cancel, true
}

// Snapshot returns the latest known progress for a job.
func (t *Tracker) Snapshot(jobID string) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.jobs[jobID]
	if !ok {
		return Progress{}, false
	}
	return st.snapshot, true
}

// Sweep drops terminal jobs whose last update is older than retain and
// reports how many were removed. Active jobs are never swept.
func (t *Tracker) Sweep(retain time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().UTC().Add(-retain)
	removed := 0
	for id, st := range t.jobs {
		if st.terminal && st.updatedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}
