package bulk

import "sync"

// Stage names a phase of a bulk run.
type Stage string

const (
	StageIdle      Stage = ""
	StageSignature Stage = "Generating signature"
	StageData      Stage = "Generating data"
	StageImages    Stage = "Generating images"
	StageZipping   Stage = "Zipping files"
)

// Progress is a point-in-time view of a running job.
type Progress struct {
	Stage   Stage `json:"stage"`
	Current int   `json:"current"`
	Total   int   `json:"total"`
}

// Tracker holds the progress of the current job. Only the pipeline writes
// to it; any number of observers may read or subscribe.
type Tracker struct {
	mu     sync.RWMutex
	cur    Progress
	active bool
	subs   map[int]chan Progress
	nextID int
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{subs: make(map[int]chan Progress)}
}

// Snapshot returns the current progress. ok is false between jobs.
func (t *Tracker) Snapshot() (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur, t.active
}

// Subscribe returns a channel receiving a copy of every update. An idle
// Progress (StageIdle) is sent when a job finishes. Slow subscribers miss
// intermediate updates rather than blocking the job, but always see the
// latest one. Call cancel to unsubscribe; the channel is closed.
func (t *Tracker) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 16)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	if t.active {
		ch <- t.cur
	}
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (t *Tracker) publish(p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = p
	t.active = true
	t.broadcastLocked(p)
}

func (t *Tracker) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = Progress{}
	t.active = false
	t.broadcastLocked(Progress{})
}

func (t *Tracker) broadcastLocked(p Progress) {
	for _, ch := range t.subs {
		select {
		case ch <- p:
			continue
		default:
		}
		// Full: drop the oldest update so the latest always lands.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}
