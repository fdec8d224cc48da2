package journal

import (
	"testing"
)

// diamond builds A -> (B, C) -> D and returns the journal plus ids in
// append order.
func diamond(t *testing.T) (*Journal, [4]string) {
	t.Helper()
	j := New()

	a := mustAppend(t, j, givenEvent("u1", "note:add"))
	b := mustAppend(t, j, givenEvent("u1", "note:left", a.ID))
	c := mustAppend(t, j, givenEvent("u1", "note:right", a.ID))
	d := mustAppend(t, j, givenEvent("u1", "note:merge", b.ID, c.ID))

	return j, [4]string{a.ID, b.ID, c.ID, d.ID}
}

func TestTopologicalOrderParentsFirst(t *testing.T) {
	j, ids := diamond(t)

	order := j.TopologicalOrder()
	if len(order) != 4 {
		t.Fatalf("order length = %d, want 4", len(order))
	}

	position := make(map[string]int, len(order))
	for i, evt := range order {
		position[evt.ID] = i
	}
	for _, evt := range order {
		for _, parent := range evt.Parents {
			if position[parent] >= position[evt.ID] {
				t.Fatalf("parent %s at %d does not precede child %s at %d",
					parent, position[parent], evt.ID, position[evt.ID])
			}
		}
	}
	if order[0].ID != ids[0] {
		t.Fatalf("root = %s, want %s", order[0].ID, ids[0])
	}
	if order[3].ID != ids[3] {
		t.Fatalf("sink = %s, want %s", order[3].ID, ids[3])
	}
}

func TestGetAllIsCausallyConsistent(t *testing.T) {
	j, _ := diamond(t)

	position := make(map[string]int)
	for i, evt := range j.GetAll() {
		position[evt.ID] = i
	}
	for _, evt := range j.GetAll() {
		for _, parent := range evt.Parents {
			if position[parent] >= position[evt.ID] {
				t.Fatalf("acceptance order violates causality: %s before %s", evt.ID, parent)
			}
		}
	}
}

func TestTopologicalOrderStableAcrossImport(t *testing.T) {
	j, _ := diamond(t)

	restored := New()
	if err := restored.Import(j.Export()); err != nil {
		t.Fatalf("import: %v", err)
	}

	original := j.TopologicalOrder()
	reimported := restored.TopologicalOrder()
	if len(original) != len(reimported) {
		t.Fatalf("length mismatch: %d vs %d", len(original), len(reimported))
	}
	for i := range original {
		if original[i].ID != reimported[i].ID {
			t.Fatalf("order diverged at %d: %s vs %s", i, original[i].ID, reimported[i].ID)
		}
	}
}

func TestHeadsTrackFrontier(t *testing.T) {
	j := New()

	a := mustAppend(t, j, givenEvent("u1", "note:add"))
	b := mustAppend(t, j, givenEvent("u1", "note:left", a.ID))
	c := mustAppend(t, j, givenEvent("u1", "note:right", a.ID))

	heads := j.Heads()
	if len(heads) != 2 {
		t.Fatalf("heads = %v, want two branch tips", heads)
	}
	want := map[string]bool{b.ID: true, c.ID: true}
	for _, id := range heads {
		if !want[id] {
			t.Fatalf("unexpected head %s", id)
		}
	}

	d := mustAppend(t, j, givenEvent("u1", "note:merge", b.ID, c.ID))
	heads = j.Heads()
	if len(heads) != 1 || heads[0] != d.ID {
		t.Fatalf("heads after merge = %v, want [%s]", heads, d.ID)
	}
}
