package conflict

import (
	"fmt"
	"strings"

	"github.com/neonwatty/linkparty-sub000/internal/party"
)

// Conflict categories surfaced to the UI.
const (
	TypePosition = "position"
	TypeStatus   = "status"
	TypeContent  = "content"
	TypeDeleted  = "deleted"
)

// Info is one advisory conflict notice, consumed once by the UI layer.
type Info struct {
	Type        string `json:"type"`
	ItemID      string `json:"itemId"`
	ItemTitle   string `json:"itemTitle"`
	Description string `json:"description"`
}

// Detect compares one pending local edit against the confirmed server row.
// It returns nil when the server has not yet observed a write newer than the
// local edit (server.UpdatedAt missing or not strictly after the change), or
// when the edited field has no comparison semantics.
func Detect(local, server party.QueueItem, change PendingChange) *Info {
	if server.UpdatedAt.IsZero() || !server.UpdatedAt.After(change.Timestamp) {
		return nil
	}

	title := local.Title
	if title == "" {
		title = server.Title
	}

	switch change.Field {
	case FieldPosition:
		if local.Position != server.Position {
			return &Info{
				Type:        TypePosition,
				ItemID:      local.ID,
				ItemTitle:   title,
				Description: "someone else moved this item",
			}
		}
	case FieldStatus:
		if local.Status != server.Status {
			return &Info{
				Type:        TypeStatus,
				ItemID:      local.ID,
				ItemTitle:   title,
				Description: fmt.Sprintf("status changed to %q by someone else", server.Status),
			}
		}
	case FieldNoteContent:
		if local.NoteContent != server.NoteContent {
			return &Info{
				Type:        TypeContent,
				ItemID:      local.ID,
				ItemTitle:   title,
				Description: "note was edited by someone else",
			}
		}
	case FieldIsCompleted:
		if local.IsCompleted != server.IsCompleted {
			desc := "marked incomplete by someone else"
			if server.IsCompleted {
				desc = "marked complete by someone else"
			}
			return &Info{
				Type:        TypeContent,
				ItemID:      local.ID,
				ItemTitle:   title,
				Description: desc,
			}
		}
	case FieldDueDate:
		le, se := local.DueDate, server.DueDate
		if (le == nil) != (se == nil) || (le != nil && se != nil && !le.Equal(*se)) {
			return &Info{
				Type:        TypeContent,
				ItemID:      local.ID,
				ItemTitle:   title,
				Description: "due date changed by someone else",
			}
		}
	}
	return nil
}

// placeholderID reports a client-only id that never names a real server row.
func placeholderID(id string) bool {
	return strings.HasPrefix(id, "temp-") || strings.HasPrefix(id, "mock-")
}

// DetectDeletions reports every id that exists locally, is gone from the
// server snapshot, and still has a pending change recorded. Reported ids have
// their pending entries cleared: a deletion conflict cannot be revisited.
// Placeholder ids are dropped silently.
func DetectDeletions(local, server []party.QueueItem, log *Log) []Info {
	onServer := make(map[string]bool, len(server))
	for _, it := range server {
		onServer[it.ID] = true
	}

	var out []Info
	for _, it := range local {
		if onServer[it.ID] || placeholderID(it.ID) {
			continue
		}
		if len(log.ForItem(it.ID)) == 0 {
			continue
		}
		log.ClearItem(it.ID)
		out = append(out, Info{
			Type:        TypeDeleted,
			ItemID:      it.ID,
			ItemTitle:   it.Title,
			Description: "an item you were editing was deleted",
		})
	}
	return out
}

// MergeQueueState replaces local state with the authoritative server snapshot
// and reports, as a side channel, every divergence a pending local edit would
// have been silently overwritten by. The merged queue is always structurally
// the server snapshot; conflicts never alter it.
func MergeQueueState(local, server []party.QueueItem, log *Log) ([]party.QueueItem, []Info) {
	conflicts := DetectDeletions(local, server, log)

	localByID := make(map[string]party.QueueItem, len(local))
	for _, it := range local {
		localByID[it.ID] = it
	}
	for _, sv := range server {
		lc, ok := localByID[sv.ID]
		if !ok {
			continue
		}
		for _, change := range log.ForItem(sv.ID) {
			if info := Detect(lc, sv, change); info != nil {
				conflicts = append(conflicts, *info)
			}
		}
	}

	// The merged result is the server snapshot, exactly. Ordering for display
	// is the sync engine's job.
	merged := make([]party.QueueItem, len(server))
	copy(merged, server)
	return merged, conflicts
}
