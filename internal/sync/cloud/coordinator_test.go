package cloud

import (
	"errors"
	"testing"
	"time"
)

func TestCoordinatorAbsorbsConcurrentTriggers(t *testing.T) {
	c := NewCoordinator()

	if !c.TryBegin() {
		t.Fatal("Expected first trigger to begin a sync")
	}
	if c.TryBegin() {
		t.Error("Expected a trigger during a sync to be absorbed")
	}
	if !c.Syncing() {
		t.Error("Expected syncing state")
	}

	c.Finish(nil)
	if c.State() != StateIdle {
		t.Errorf("Expected idle after finish, got %s", c.State())
	}

	if !c.TryBegin() {
		t.Error("Expected a new sync to begin after finish")
	}
	c.Finish(nil)
}

func TestCoordinatorErrorState(t *testing.T) {
	c := NewCoordinator()

	c.TryBegin()
	c.Finish(errors.New("backend unreachable"))

	if c.State() != StateError {
		t.Errorf("Expected error state, got %s", c.State())
	}
	if c.LastError() == nil {
		t.Error("Expected last error to be kept")
	}

	// The next successful pass clears the error
	c.TryBegin()
	c.Finish(nil)
	if c.LastError() != nil {
		t.Error("Expected last error cleared by a clean pass")
	}
}

func TestCoordinatorSubscribers(t *testing.T) {
	c := NewCoordinator()

	ch, cancel := c.Subscribe()
	defer cancel()

	c.TryBegin()
	c.Finish(nil)

	states := []State{}
	timeout := time.After(time.Second)
	for len(states) < 2 {
		select {
		case state := <-ch:
			states = append(states, state)
		case <-timeout:
			t.Fatalf("Timed out waiting for state transitions, got %v", states)
		}
	}

	if states[0] != StateSyncing || states[1] != StateIdle {
		t.Errorf("Expected syncing then idle, got %v", states)
	}

	// Cancelling closes the channel and later transitions don't panic
	cancel()
	c.TryBegin()
	c.Finish(nil)
}
