package derive

import (
	"slices"
)

// Record is one aggregate row in a collection.
type Record map[string]any

// Collection is an indexed table of records. Handlers mutate projections
// exclusively through collection methods, never by reaching into nested maps
// they do not own; that keeps the fold the projection's only writer.
type Collection struct {
	name  string
	items map[string]Record
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Put inserts or replaces a record.
func (c *Collection) Put(id string, record Record) {
	if record == nil {
		record = Record{}
	}
	c.items[id] = record
}

// Get returns the stored record. The result aliases projection state; only
// handlers may mutate it. External readers go through State.Lookup, which
// copies.
func (c *Collection) Get(id string) (Record, bool) {
	record, ok := c.items[id]
	return record, ok
}

// Update applies fn to the record when present and reports whether it was.
func (c *Collection) Update(id string, fn func(Record)) bool {
	record, ok := c.items[id]
	if !ok {
		return false
	}
	fn(record)
	return true
}

// Delete removes a record and reports whether it existed.
func (c *Collection) Delete(id string) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	return true
}

// Len returns the number of records.
func (c *Collection) Len() int {
	return len(c.items)
}

// IDs returns the record ids in sorted order.
func (c *Collection) IDs() []string {
	out := make([]string, 0, len(c.items))
	for id := range c.items {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// State is the derived projection: a set of named collections, entirely
// re-derivable from the journal. Callers outside the fold must treat it as
// read-only.
type State struct {
	collections map[string]*Collection
}

// NewState creates an empty projection.
func NewState() *State {
	return &State{collections: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it on first use so
// handlers can rely on well-defined empty tables.
func (s *State) Collection(name string) *Collection {
	if existing, ok := s.collections[name]; ok {
		return existing
	}
	created := &Collection{name: name, items: make(map[string]Record)}
	s.collections[name] = created
	return created
}

// Collections returns the existing collection names in sorted order.
func (s *State) Collections() []string {
	out := make([]string, 0, len(s.collections))
	for name := range s.collections {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Lookup returns a deep copy of one record, safe for external callers.
func (s *State) Lookup(collection, id string) (Record, bool) {
	existing, ok := s.collections[collection]
	if !ok {
		return nil, false
	}
	record, ok := existing.items[id]
	if !ok {
		return nil, false
	}
	return cloneRecord(record), true
}

// Snapshot returns a deep copy of the whole projection keyed by collection
// and record id. Used by readers and by tests comparing derivations.
func (s *State) Snapshot() map[string]map[string]Record {
	out := make(map[string]map[string]Record, len(s.collections))
	for name, collection := range s.collections {
		records := make(map[string]Record, len(collection.items))
		for id, record := range collection.items {
			records[id] = cloneRecord(record)
		}
		out[name] = records
	}
	return out
}

func cloneRecord(record Record) Record {
	out := make(Record, len(record))
	for k, v := range record {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case Record:
		return map[string]any(cloneRecord(v))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
