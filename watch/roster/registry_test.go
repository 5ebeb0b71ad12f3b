package roster

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/wricardo/mcp-training/watchparty/watch/party"
)

func ids(roster []party.Participant) []string {
	out := make([]string, 0, len(roster))
	for _, p := range roster {
		out = append(out, p.ID)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if reg.Len() != 0 {
		t.Errorf("Expected empty registry, got %d entries", reg.Len())
	}
	if snap := reg.Snapshot(); len(snap) != 0 {
		t.Errorf("Expected empty snapshot, got %v", snap)
	}
}

func TestRegistryRegisterOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("c1", party.Participant{ID: "u1"})
	reg.Register("c2", party.Participant{ID: "u2"})
	reg.Register("c3", party.Participant{ID: "u3"})

	got := ids(reg.Snapshot())
	want := []string{"u1", "u2", "u3"}
	if !equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRegistryReRegisterReplacesInPlace(t *testing.T) {
	reg := NewRegistry()
	reg.Register("c1", party.Participant{ID: "u1", Name: "old"})
	reg.Register("c2", party.Participant{ID: "u2"})
	reg.Register("c1", party.Participant{ID: "u1", Name: "new"})

	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Expected 2 entries after re-registration, got %d", len(snap))
	}
	if snap[0].ID != "u1" || snap[0].Name != "new" {
		t.Errorf("Expected c1 entry replaced in place, got %+v", snap[0])
	}
}

func TestRegistryDuplicateParticipantIDs(t *testing.T) {
	reg := NewRegistry()
	reg.Register("c1", party.Participant{ID: "same"})
	reg.Register("c2", party.Participant{ID: "same"})

	if reg.Len() != 2 {
		t.Errorf("Expected 2 independent entries, got %d", reg.Len())
	}
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register("c1", party.Participant{ID: "u1"})
	reg.Register("c2", party.Participant{ID: "u2"})

	if !reg.Unregister("c1") {
		t.Error("Unregister should report removal of an existing entry")
	}
	if reg.Unregister("c1") {
		t.Error("Second Unregister should be a no-op")
	}
	if reg.Unregister("never") {
		t.Error("Unregister of unknown connection should be a no-op")
	}

	got := ids(reg.Snapshot())
	if !equal(got, []string{"u2"}) {
		t.Errorf("Expected [u2], got %v", got)
	}
	if _, ok := reg.Lookup("c1"); ok {
		t.Error("Lookup should miss after Unregister")
	}
}

func TestRegistrySnapshotIsImmutable(t *testing.T) {
	reg := NewRegistry()
	reg.Register("c1", party.Participant{ID: "u1"})

	snap := reg.Snapshot()
	snap[0].ID = "tampered"
	reg.Register("c2", party.Participant{ID: "u2"})

	if snap[0].ID != "tampered" || len(snap) != 1 {
		t.Error("Snapshot should not change after later registrations")
	}
	if p, _ := reg.Lookup("c1"); p.ID != "u1" {
		t.Errorf("Mutating a snapshot changed the registry: %+v", p)
	}
}

// TestRegistryRandomSequences checks that the snapshot after any sequence of
// calls holds one entry per connection last registered and not since removed.
func TestRegistryRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		reg := NewRegistry()
		model := map[string]string{}
		var order []string

		for step := 0; step < 50; step++ {
			conn := fmt.Sprintf("c%d", rng.Intn(8))
			if rng.Intn(3) == 0 {
				reg.Unregister(conn)
				if _, ok := model[conn]; ok {
					delete(model, conn)
					for i, c := range order {
						if c == conn {
							order = append(order[:i], order[i+1:]...)
							break
						}
					}
				}
				continue
			}

			pid := fmt.Sprintf("u%d-%d", rng.Intn(4), step)
			reg.Register(conn, party.Participant{ID: pid})
			if _, ok := model[conn]; !ok {
				order = append(order, conn)
			}
			model[conn] = pid
		}

		want := make([]string, 0, len(order))
		for _, c := range order {
			want = append(want, model[c])
		}
		if got := ids(reg.Snapshot()); !equal(got, want) {
			t.Fatalf("round %d: expected %v, got %v", round, want, got)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			reg.Register(conn, party.Participant{ID: conn})
			_ = reg.Snapshot()
			if i%2 == 0 {
				reg.Unregister(conn)
			}
		}(i)
	}
	wg.Wait()

	if reg.Len() != 25 {
		t.Errorf("Expected 25 entries, got %d", reg.Len())
	}
}
