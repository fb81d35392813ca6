package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/obsproc/quicklook/internal/uiloop"
)

func TestManagerLazyCreate(t *testing.T) {
	m := NewManager()

	a := m.Get("a")
	if a == nil || a.ID != "a" {
		t.Fatalf("Get returned %+v", a)
	}
	if m.Get("a") != a {
		t.Error("Get must return the same state for the same id")
	}
	if m.Get("b") == a {
		t.Error("distinct sessions must not share state")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestManagerEndStopsPolls(t *testing.T) {
	m := NewManager()
	loop := uiloop.NewManualTicker()
	defer loop.Stop()

	m.Get("a")
	runs := 0
	h := loop.SchedulePeriodic(func() bool {
		runs++
		return true
	}, 10*time.Millisecond)
	m.Track("a", h)

	now := time.Now()
	loop.Tick(now.Add(20 * time.Millisecond))
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}

	m.End("a")
	loop.Tick(now.Add(40 * time.Millisecond))
	loop.Tick(now.Add(60 * time.Millisecond))
	if runs != 1 {
		t.Errorf("runs = %d, ended session's polls must not fire", runs)
	}

	m.End("a") // idempotent
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestManagerEndAll(t *testing.T) {
	m := NewManager()
	for i := 0; i < 5; i++ {
		m.Get(fmt.Sprintf("s%d", i))
	}
	m.EndAll()
	if m.Len() != 0 {
		t.Errorf("Len = %d after EndAll, want 0", m.Len())
	}
}

func TestManagerConcurrentGet(t *testing.T) {
	m := NewManager()

	const n = 32
	states := make([]*State, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states[i] = m.Get("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if states[i] != states[0] {
			t.Fatal("concurrent Get must converge on one state")
		}
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}
