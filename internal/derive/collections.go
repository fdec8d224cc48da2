package derive

import (
	"fmt"

	"github.com/louisbranch/chronicle/internal/journal"
)

// Collection names populated by the built-in handler pack.
const (
	CollectionSets    = "sets"
	CollectionRecords = "records"
)

// Actions handled by the built-in handler pack.
const (
	ActionSetCreate    = "set:create"
	ActionSetRename    = "set:rename"
	ActionSetDelete    = "set:delete"
	ActionRecordAdd    = "record:add"
	ActionRecordUpdate = "record:update"
	ActionRecordRemove = "record:remove"
	ActionFieldSet     = "field:set"
)

// RegisterCollectionHandlers wires the built-in set/record domain into an
// engine. Domain modules with their own aggregates register additional
// handlers beside these; the registry stays open.
func RegisterCollectionHandlers(e *Engine) {
	e.RegisterHandler(ActionSetCreate, applySetCreate)
	e.RegisterHandler(ActionSetRename, applySetRename)
	e.RegisterHandler(ActionSetDelete, applySetDelete)
	e.RegisterHandler(ActionRecordAdd, applyRecordAdd)
	e.RegisterHandler(ActionRecordUpdate, applyRecordUpdate)
	e.RegisterHandler(ActionRecordRemove, applyRecordRemove)
	e.RegisterHandler(ActionFieldSet, applyFieldSet)
}

func applySetCreate(state *State, evt journal.Event) error {
	setID := stringField(evt.Payload.Data, "set_id", evt.ID)
	record := Record{
		"name":       stringField(evt.Payload.Data, "name", setID),
		"created_by": evt.Actor,
		"created_at": evt.Timestamp,
	}
	state.Collection(CollectionSets).Put(setID, record)
	return nil
}

func applySetRename(state *State, evt journal.Event) error {
	setID := stringField(evt.Payload.Data, "set_id", "")
	if setID == "" {
		return fmt.Errorf("set rename requires set_id")
	}
	name := stringField(evt.Payload.Data, "name", "")
	if name == "" {
		return fmt.Errorf("set rename requires name")
	}
	if !state.Collection(CollectionSets).Update(setID, func(record Record) {
		record["name"] = name
	}) {
		return fmt.Errorf("set not found: %s", setID)
	}
	return nil
}

func applySetDelete(state *State, evt journal.Event) error {
	setID := stringField(evt.Payload.Data, "set_id", "")
	if setID == "" {
		return fmt.Errorf("set delete requires set_id")
	}
	if !state.Collection(CollectionSets).Delete(setID) {
		return fmt.Errorf("set not found: %s", setID)
	}

	// Records belong to their set; deleting the set removes them too.
	records := state.Collection(CollectionRecords)
	for _, id := range records.IDs() {
		record, ok := records.Get(id)
		if !ok {
			continue
		}
		if owner, _ := record["set_id"].(string); owner == setID {
			records.Delete(id)
		}
	}
	return nil
}

func applyRecordAdd(state *State, evt journal.Event) error {
	recordID := stringField(evt.Payload.Data, "record_id", evt.ID)
	record := Record{
		"set_id":     stringField(evt.Payload.Data, "set_id", ""),
		"fields":     mapField(evt.Payload.Data, "fields"),
		"created_by": evt.Actor,
		"created_at": evt.Timestamp,
	}
	state.Collection(CollectionRecords).Put(recordID, record)
	return nil
}

func applyRecordUpdate(state *State, evt journal.Event) error {
	recordID := stringField(evt.Payload.Data, "record_id", "")
	if recordID == "" {
		return fmt.Errorf("record update requires record_id")
	}
	updates := mapField(evt.Payload.Data, "fields")
	if !state.Collection(CollectionRecords).Update(recordID, func(record Record) {
		fields, _ := record["fields"].(map[string]any)
		if fields == nil {
			fields = map[string]any{}
			record["fields"] = fields
		}
		for key, value := range updates {
			fields[key] = value
		}
	}) {
		return fmt.Errorf("record not found: %s", recordID)
	}
	return nil
}

func applyRecordRemove(state *State, evt journal.Event) error {
	recordID := stringField(evt.Payload.Data, "record_id", "")
	if recordID == "" {
		return fmt.Errorf("record remove requires record_id")
	}
	if !state.Collection(CollectionRecords).Delete(recordID) {
		return fmt.Errorf("record not found: %s", recordID)
	}
	return nil
}

func applyFieldSet(state *State, evt journal.Event) error {
	recordID := stringField(evt.Payload.Data, "record_id", "")
	field := stringField(evt.Payload.Data, "field", "")
	if recordID == "" || field == "" {
		return fmt.Errorf("field set requires record_id and field")
	}
	value := evt.Payload.Data["value"]
	if !state.Collection(CollectionRecords).Update(recordID, func(record Record) {
		fields, _ := record["fields"].(map[string]any)
		if fields == nil {
			fields = map[string]any{}
			record["fields"] = fields
		}
		fields[field] = value
	}) {
		return fmt.Errorf("record not found: %s", recordID)
	}
	return nil
}

// stringField extracts an optional string from payload data, falling back
// when absent or not a string.
func stringField(data map[string]any, key, fallback string) string {
	if data == nil {
		return fallback
	}
	if value, ok := data[key].(string); ok && value != "" {
		return value
	}
	return fallback
}

// mapField extracts a nested object from payload data, copying it so the
// projection never aliases event payloads.
func mapField(data map[string]any, key string) map[string]any {
	out := map[string]any{}
	if data == nil {
		return out
	}
	nested, ok := data[key].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range nested {
		out[k] = cloneValue(v)
	}
	return out
}
