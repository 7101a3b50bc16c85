package presence

import (
	"fmt"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegistry_JoinAndRoster(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice", "lobby")
	r.Join("c2", "bob", "lobby")
	r.Join("c3", "carol", "other")

	roster := r.RosterFor("lobby")
	if len(roster) != 2 {
		t.Fatalf("len(roster) = %d, want 2", len(roster))
	}
	if roster[0].DisplayName != "alice" || roster[1].DisplayName != "bob" {
		t.Errorf("roster order = %v, want alice then bob", roster)
	}
	if roster[0].ConnectionID != "c1" || roster[0].Room != "lobby" {
		t.Errorf("roster[0] = %+v", roster[0])
	}

	if got := r.RosterFor("nowhere"); len(got) != 0 {
		t.Errorf("empty room roster = %v", got)
	}
}

func TestRegistry_RosterKeepsInsertionOrder(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 20; i++ {
		r.Join(fmt.Sprintf("c%02d", i), fmt.Sprintf("user%d", i), "lobby")
	}

	ids := r.MemberIDs("lobby")
	for i, id := range ids {
		if want := fmt.Sprintf("c%02d", i); id != want {
			t.Fatalf("ids[%d] = %s, want %s", i, id, want)
		}
	}
}

func TestRegistry_RejoinMovesRoom(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice", "lobby")
	r.Join("c2", "bob", "lobby")
	r.Join("c1", "alice", "other")

	if got := r.MemberIDs("lobby"); len(got) != 1 || got[0] != "c2" {
		t.Errorf("lobby = %v, want [c2]", got)
	}
	if got := r.MemberIDs("other"); len(got) != 1 || got[0] != "c1" {
		t.Errorf("other = %v, want [c1]", got)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
}

func TestRegistry_Leave(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice", "lobby")

	m, ok := r.Leave("c1")
	if !ok {
		t.Fatal("Leave() reported not present")
	}
	if m.Room != "lobby" || m.DisplayName != "alice" {
		t.Errorf("Leave() = %+v", m)
	}
	if _, ok := r.Lookup("c1"); ok {
		t.Error("c1 still present after Leave")
	}
	if _, ok := r.Leave("c1"); ok {
		t.Error("second Leave() should report absent")
	}
	if rooms := r.Rooms(); len(rooms) != 0 {
		t.Errorf("Rooms() = %v, want empty", rooms)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice", "lobby")

	m, ok := r.Lookup("c1")
	if !ok || m.DisplayName != "alice" {
		t.Errorf("Lookup(c1) = %+v, %v", m, ok)
	}
	if _, ok := r.Lookup("ghost"); ok {
		t.Error("Lookup(ghost) should be absent")
	}
}

func TestRegistry_InstancesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.Join("c1", "alice", "lobby")

	if _, ok := b.Lookup("c1"); ok {
		t.Error("registries must not share state")
	}
}

func TestRegistry_RosterExclusivityUnderConcurrency(t *testing.T) {
	r := NewRegistry()
	rooms := []string{"a", "b", "c"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			for j := 0; j < 100; j++ {
				r.Join(id, id, rooms[(i+j)%len(rooms)])
				if j%7 == 0 {
					r.Leave(id)
				}
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]string{}
	for _, room := range rooms {
		for _, m := range r.RosterFor(room) {
			if prev, dup := seen[m.ConnectionID]; dup {
				t.Errorf("%s appears in both %s and %s", m.ConnectionID, prev, room)
			}
			seen[m.ConnectionID] = room
		}
	}
	if len(seen) != r.Count() {
		t.Errorf("rosters hold %d connections, Count() = %d", len(seen), r.Count())
	}
}
