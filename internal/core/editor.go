package core

// editor.go implements the change tracker behind spreadsheet edits.
//
// A section is loaded with SetData, edited with SetValue, and the recorded
// updates are replayed upstream as cell writes (spreadsheet) or text
// replacements (presentation). Replacing a section's data discards its
// pending updates, so a replay never carries edits against rows that no
// longer exist.

import (
	"fmt"
	"sync"
)

// Field is one column of a section.
type Field struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
}

// Section describes an editable block of a spreadsheet.
// Field order is column order.
type Section struct {
	ID     string  `json:"id"`
	Fields []Field `json:"fields"`
}

// Update records one successful SetValue.
type Update struct {
	Section       string `json:"section"`
	Field         string `json:"field"`
	RowIndex      int    `json:"row_index"`
	PreviousValue any    `json:"previous_value"`
	NewValue      any    `json:"new_value"`
}

type sectionState struct {
	section Section
	rows    []map[string]any
}

// ChangeTracker records validated cell edits. Safe for concurrent use.
type ChangeTracker struct {
	mu       sync.Mutex
	sections map[string]*sectionState
	updates  []Update
}

// NewChangeTracker returns an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{sections: make(map[string]*sectionState)}
}

// SetData replaces the backing rows of a section and discards every update
// recorded for it.
func (t *ChangeTracker) SetData(section Section, rows []map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	copied := make([]map[string]any, len(rows))
	for i, r := range rows {
		m := make(map[string]any, len(r))
		for k, v := range r {
			m[k] = v
		}
		copied[i] = m
	}
	t.sections[section.ID] = &sectionState{section: section, rows: copied}

	kept := t.updates[:0]
	for _, u := range t.updates {
		if u.Section != section.ID {
			kept = append(kept, u)
		}
	}
	t.updates = kept
}

// SetValue writes a cell and records the change.
func (t *ChangeTracker) SetValue(sectionID, field string, rowIndex int, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.lookup(sectionID, field, rowIndex)
	if err != nil {
		return err
	}

	prev := st.rows[rowIndex][field]
	st.rows[rowIndex][field] = value
	t.updates = append(t.updates, Update{
		Section:       sectionID,
		Field:         field,
		RowIndex:      rowIndex,
		PreviousValue: prev,
		NewValue:      value,
	})
	return nil
}

// GetValue reads a cell with the same validation as SetValue.
func (t *ChangeTracker) GetValue(sectionID, field string, rowIndex int) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.lookup(sectionID, field, rowIndex)
	if err != nil {
		return nil, err
	}
	return st.rows[rowIndex][field], nil
}

func (t *ChangeTracker) lookup(sectionID, field string, rowIndex int) (*sectionState, error) {
	st, ok := t.sections[sectionID]
	if !ok {
		return nil, validationf("section %q has no data loaded", sectionID)
	}
	if rowIndex < 0 || rowIndex >= len(st.rows) {
		return nil, &OutOfRangeError{Section: sectionID, Row: rowIndex, Len: len(st.rows)}
	}
	if fieldIndex(st.section, field) < 0 {
		return nil, &UnknownFieldError{Section: sectionID, Field: field}
	}
	return st, nil
}

// GetUpdates returns a copy of the recorded updates.
func (t *ChangeTracker) GetUpdates() []Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Update{}, t.updates...)
}

// UpdatesFor returns a copy of the updates recorded for one section.
func (t *ChangeTracker) UpdatesFor(sectionID string) []Update {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := []Update{}
	for _, u := range t.updates {
		if u.Section == sectionID {
			out = append(out, u)
		}
	}
	return out
}

// ClearUpdates forgets every recorded update.
func (t *ChangeTracker) ClearUpdates() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updates = nil
}

// CellWrites replays the recorded updates as spreadsheet cell writes.
// Data row 0 of a section is sheet row 1 (the row after the header).
func (t *ChangeTracker) CellWrites() []CellWrite {
	t.mu.Lock()
	defer t.mu.Unlock()

	writes := make([]CellWrite, 0, len(t.updates))
	for _, u := range t.updates {
		st, ok := t.sections[u.Section]
		if !ok {
			continue
		}
		writes = append(writes, CellWrite{
			Section: u.Section,
			Row:     u.RowIndex + 1,
			Column:  fieldIndex(st.section, u.Field),
			Value:   u.NewValue,
		})
	}
	return writes
}

// TextReplacements replays the recorded updates as presentation text
// replacements, old rendered value to new. Updates whose old value renders
// empty are skipped since there is nothing to search for. When the same
// text is edited twice the last edit wins.
func (t *ChangeTracker) TextReplacements() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]string)
	for _, u := range t.updates {
		old := Stringify(u.PreviousValue)
		if old == "" {
			continue
		}
		out[old] = Stringify(u.NewValue)
	}
	return out
}

func fieldIndex(s Section, key string) int {
	for i, f := range s.Fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// SectionFromSheet converts a spreadsheet snapshot into a tracker section.
// Fields are keyed by trimmed header; duplicate headers get a column suffix.
func SectionFromSheet(id string, data SheetData) (Section, []map[string]any) {
	sec := Section{ID: id, Fields: make([]Field, len(data.Headers))}
	used := make(map[string]bool, len(data.Headers))
	for i, h := range data.Headers {
		key := trimmedOr(h, fmt.Sprintf("column_%d", i+1))
		if used[key] {
			key = fmt.Sprintf("%s_%d", key, i+1)
		}
		used[key] = true
		label := ""
		if i < len(data.Display) {
			label = data.Display[i]
		}
		sec.Fields[i] = Field{Key: key, Label: label}
	}

	rows := make([]map[string]any, len(data.Rows))
	for r, row := range data.Rows {
		m := make(map[string]any, len(sec.Fields))
		for i, f := range sec.Fields {
			m[f.Key] = valueAt(row.Values, i)
		}
		rows[r] = m
	}
	return sec, rows
}
