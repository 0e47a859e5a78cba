package cloud

import (
	"sync"
)

// State is the coordinator's sync state
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateError
)

// String returns a readable state name
func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Coordinator tracks whether a sync is in flight and publishes state
// transitions to subscribers. It is an injected value, not shared module
// state; read-heavy callers subscribe instead of polling so they can
// throttle themselves during a sync window.
type Coordinator struct {
	mu          sync.Mutex
	state       State
	lastError   error
	subscribers map[int]chan State
	nextID      int
}

// NewCoordinator creates a coordinator in the idle state
func NewCoordinator() *Coordinator {
	return &Coordinator{
		subscribers: make(map[int]chan State),
	}
}

// State returns the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Syncing reports whether a sync is currently in flight
func (c *Coordinator) Syncing() bool {
	return c.State() == StateSyncing
}

// LastError returns the error from the most recent failed sync, if any
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Subscribe registers a state listener. The returned cancel function must
// be called to release it. Slow subscribers miss intermediate transitions
// rather than blocking the sync path.
func (c *Coordinator) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	ch := make(chan State, 8)
	c.subscribers[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(existing)
		}
	}

	return ch, cancel
}

// TryBegin transitions to syncing unless a sync is already in flight, in
// which case the new trigger is absorbed and false is returned
func (c *Coordinator) TryBegin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSyncing {
		return false
	}

	c.state = StateSyncing
	c.lastError = nil
	c.notifyLocked()
	return true
}

// Finish transitions back to idle, or to the error state when err is
// non-nil
func (c *Coordinator) Finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastError = err
	if err != nil {
		c.state = StateError
	} else {
		c.state = StateIdle
	}
	c.notifyLocked()
}

func (c *Coordinator) notifyLocked() {
	for _, ch := range c.subscribers {
		select {
		case ch <- c.state:
		default:
		}
	}
}
