// Package status broadcasts pipeline state and the rolling transcript
// history to observers.
package status

import (
	"sync"
	"time"
)

// State is the session controller's lifecycle state.
type State string

const (
	Idle         State = "idle"
	Recording    State = "recording"
	Stopping     State = "stopping"
	Transcribing State = "transcribing"
	Extracting   State = "extracting"
	Persisting   State = "persisting"
	Error        State = "error"
)

// Entry is one line of the rolling history.
type Entry struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Snapshot is a point-in-time copy of the channel; it shares no memory with
// the channel.
type Snapshot struct {
	State     State     `json:"state"`
	Label     string    `json:"label"`
	Active    bool      `json:"active"`
	LastFile  string    `json:"last_file,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	History   []Entry   `json:"history"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Channel holds the observable pipeline status. Writes trim history to the
// bound under the same lock as the append, and every write fans a snapshot out
// to subscribers without blocking.
type Channel struct {
	mu       sync.Mutex
	state    State
	label    string
	active   bool
	lastFile string
	started  time.Time
	history  []Entry
	maxSize  int
	now      func() time.Time
	subs     map[int]chan Snapshot
	nextID   int
}

// New returns a channel in the Idle state keeping at most historySize entries.
func New(historySize int) *Channel {
	if historySize < 1 {
		historySize = 1
	}
	return &Channel{
		state:   Idle,
		label:   "Idle",
		history: make([]Entry, 0, historySize),
		maxSize: historySize,
		now:     time.Now,
		subs:    make(map[int]chan Snapshot),
	}
}

// SetState records a state transition with a human-readable label.
// Active is derived: any state other than Idle and Error counts.
func (c *Channel) SetState(state State, label string) {
	c.mu.Lock()
	c.state = state
	c.label = label
	c.active = state != Idle && state != Error
	c.publishLocked()
	c.mu.Unlock()
}

// SetLabel updates the label without changing the state.
func (c *Channel) SetLabel(label string) {
	c.mu.Lock()
	c.label = label
	c.publishLocked()
	c.mu.Unlock()
}

// SetRecording records the file being captured and when capture began.
func (c *Channel) SetRecording(path string, startedAt time.Time) {
	c.mu.Lock()
	c.lastFile = path
	c.started = startedAt
	c.publishLocked()
	c.mu.Unlock()
}

// Append adds a history line, dropping the oldest entries past the bound.
func (c *Channel) Append(text string) {
	c.mu.Lock()
	c.history = append(c.history, Entry{At: c.now(), Text: text})
	if len(c.history) > c.maxSize {
		c.history = append(c.history[:0], c.history[len(c.history)-c.maxSize:]...)
	}
	c.publishLocked()
	c.mu.Unlock()
}

func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel of snapshots and a cancel func. The current
// snapshot is delivered first. A subscriber that falls behind by more than
// buffer snapshots misses intermediate ones but always receives the latest.
func (c *Channel) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			close(ch)
			c.mu.Unlock()
		})
	}
}

func (c *Channel) snapshotLocked() Snapshot {
	history := make([]Entry, len(c.history))
	copy(history, c.history)
	return Snapshot{
		State:     c.state,
		Label:     c.label,
		Active:    c.active,
		LastFile:  c.lastFile,
		StartedAt: c.started,
		History:   history,
		UpdatedAt: c.now(),
	}
}

func (c *Channel) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Full: drop the oldest queued snapshot so the newest is kept.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
