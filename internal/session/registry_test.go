package session_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/omochice/sockjs-server/internal/session"
)

func newTestSession(id string) func() *session.Session {
	return func() *session.Session {
		return session.New(id, session.Info{}, nil)
	}
}

func TestMemoryRegistry_GetOrCreate(t *testing.T) {
	reg := session.NewMemoryRegistry(4)

	s1, created := reg.GetOrCreate("s1", newTestSession("s1"))
	if !created {
		t.Error("first GetOrCreate() created = false, want true")
	}
	s2, created := reg.GetOrCreate("s1", newTestSession("s1"))
	if created {
		t.Error("second GetOrCreate() created = true, want false")
	}
	if s1 != s2 {
		t.Error("GetOrCreate() returned two different sessions for one id")
	}
	if got := reg.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestMemoryRegistry_GetOrCreate_Concurrent(t *testing.T) {
	reg := session.NewMemoryRegistry(0)

	const workers = 50
	var wg sync.WaitGroup
	results := make([]*session.Session, workers)
	var mu sync.Mutex
	creates := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, created := reg.GetOrCreate("race", newTestSession("race"))
			results[i] = s
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if creates != 1 {
		t.Errorf("sessions created = %d, want 1", creates)
	}
	for i, s := range results {
		if s != results[0] {
			t.Fatalf("worker %d saw a different session", i)
		}
	}
}

func TestMemoryRegistry_GetRemove(t *testing.T) {
	reg := session.NewMemoryRegistry(16)
	reg.GetOrCreate("a", newTestSession("a"))

	if _, ok := reg.Get("a"); !ok {
		t.Fatal("Get() ok = false, want true")
	}
	reg.Remove("a")
	if _, ok := reg.Get("a"); ok {
		t.Error("Get() after Remove() ok = true, want false")
	}
	if got := reg.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestMemoryRegistry_Range(t *testing.T) {
	reg := session.NewMemoryRegistry(8)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("s%d", i)
		reg.GetOrCreate(id, newTestSession(id))
	}

	seen := 0
	reg.Range(func(*session.Session) bool {
		seen++
		return true
	})
	if seen != 10 {
		t.Errorf("Range visited %d sessions, want 10", seen)
	}

	seen = 0
	reg.Range(func(*session.Session) bool {
		seen++
		return seen < 3
	})
	if seen != 3 {
		t.Errorf("Range visited %d sessions after stop, want 3", seen)
	}
}

func TestMemoryRegistry_RangeCanRemove(t *testing.T) {
	reg := session.NewMemoryRegistry(1)
	reg.GetOrCreate("a", newTestSession("a"))
	reg.GetOrCreate("b", newTestSession("b"))

	reg.Range(func(s *session.Session) bool {
		reg.Remove(s.ID())
		return true
	})

	if got := reg.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}
