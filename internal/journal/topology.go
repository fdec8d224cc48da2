package journal

// TopologicalOrder returns every accepted event in a deterministic causal
// order: a depth-first walk from each event that visits parents before the
// event itself. This is the order the derivation engine replays in.
//
// Acceptance order is itself causally consistent, but the explicit walk keeps
// replay order stable across journals that accepted the same DAG in a
// different interleaving (for example after an import).
func (j *Journal) TopologicalOrder() []Event {
	visited := make(map[string]bool, len(j.events))
	out := make([]Event, 0, len(j.events))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		pos, ok := j.index[id]
		if !ok {
			// Dangling parent reference from an imported snapshot; nothing to
			// emit for it.
			visited[id] = true
			return
		}
		visited[id] = true
		for _, parent := range j.events[pos].Parents {
			visit(parent)
		}
		out = append(out, j.events[pos].Clone())
	}

	for _, evt := range j.events {
		visit(evt.ID)
	}
	return out
}
