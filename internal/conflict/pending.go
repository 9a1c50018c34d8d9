// Package conflict detects when a locally-pending edit has been superseded by
// a concurrent remote change. It is advisory only: the server snapshot always
// wins, the detector just tells the UI what the overwrite discarded.
package conflict

import (
	"time"
)

// Fields with defined comparison semantics. Edits to anything else never
// conflict.
const (
	FieldPosition    = "position"
	FieldStatus      = "status"
	FieldNoteContent = "noteContent"
	FieldIsCompleted = "isCompleted"
	FieldDueDate     = "dueDate"
)

// PendingChange records one optimistic local edit awaiting server
// confirmation.
type PendingChange struct {
	ItemID    string
	Field     string
	OldValue  any
	NewValue  any
	Timestamp time.Time
}

type pendingKey struct {
	itemID string
	field  string
}

// Log holds pending changes keyed by (item, field). It is owned by a single
// client loop and needs no locking. A newer edit to the same field replaces
// the older entry rather than stacking.
type Log struct {
	changes map[pendingKey]PendingChange
}

func NewLog() *Log {
	return &Log{changes: make(map[pendingKey]PendingChange)}
}

func (l *Log) Add(c PendingChange) {
	l.changes[pendingKey{c.ItemID, c.Field}] = c
}

func (l *Log) Get(itemID, field string) (PendingChange, bool) {
	c, ok := l.changes[pendingKey{itemID, field}]
	return c, ok
}

// ForItem returns every pending change recorded for itemID.
func (l *Log) ForItem(itemID string) []PendingChange {
	var out []PendingChange
	for k, c := range l.changes {
		if k.itemID == itemID {
			out = append(out, c)
		}
	}
	return out
}

// Clear drops one (item, field) entry.
func (l *Log) Clear(itemID, field string) {
	delete(l.changes, pendingKey{itemID, field})
}

// ClearItem drops every entry for itemID.
func (l *Log) ClearItem(itemID string) {
	for k := range l.changes {
		if k.itemID == itemID {
			delete(l.changes, k)
		}
	}
}

func (l *Log) ClearAll() {
	l.changes = make(map[pendingKey]PendingChange)
}

// Len reports the number of recorded changes.
func (l *Log) Len() int { return len(l.changes) }

// ItemIDs lists the distinct item ids with at least one pending change.
func (l *Log) ItemIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for k := range l.changes {
		if !seen[k.itemID] {
			seen[k.itemID] = true
			ids = append(ids, k.itemID)
		}
	}
	return ids
}
