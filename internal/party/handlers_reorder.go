package party

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// PositionUpdate is one row of a batch reorder.
type PositionUpdate struct {
	ID       string  `json:"id"`
	Position float64 `json:"position"`
}

// handleReorderItems applies a batch of {id, position} pairs as one atomic
// statement. Two clients reordering concurrently must never interleave at the
// per-row level, so this is a single multi-row UPDATE, not a loop.
func (s *Server) handleReorderItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "missing party id")
		return
	}

	var body struct {
		SessionID string           `json:"sessionId"`
		Updates   []PositionUpdate `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Updates) == 0 {
		writeError(w, http.StatusBadRequest, "updates must not be empty")
		return
	}
	seen := make(map[string]bool, len(body.Updates))
	for _, u := range body.Updates {
		if u.ID == "" {
			writeError(w, http.StatusBadRequest, "update with empty id")
			return
		}
		if seen[u.ID] {
			writeError(w, http.StatusBadRequest, "duplicate id in updates")
			return
		}
		seen[u.ID] = true
	}

	_, _, apiErr := s.authorize(ctx, r, partyID, body.SessionID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	ids := make([]string, len(body.Updates))
	positions := make([]float64, len(body.Updates))
	for i, u := range body.Updates {
		ids[i] = u.ID
		positions[i] = u.Position
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Printf("watchparty: reorder begin tx: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE queue_items AS q
		SET position = u.position, updated_at = now()
		FROM (
			SELECT unnest($2::uuid[]) AS id, unnest($3::float8[]) AS position
		) u
		WHERE q.id = u.id AND q.party_id = $1
		RETURNING `+prefixedQueueItemColumns("q."),
		partyID, ids, positions)
	if err != nil {
		log.Printf("watchparty: reorder update: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	updated := make([]QueueItem, 0, len(body.Updates))
	for rows.Next() {
		var it QueueItem
		if err := scanQueueItem(rows, &it); err != nil {
			rows.Close()
			log.Printf("watchparty: reorder scan: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		updated = append(updated, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		log.Printf("watchparty: reorder rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	// Partial application would leave the queue half-reordered for everyone;
	// treat it as a hard failure and roll back.
	if len(updated) != len(body.Updates) {
		log.Printf("watchparty: reorder touched %d of %d rows, rolling back", len(updated), len(body.Updates))
		writeError(w, http.StatusInternalServerError, "reorder applied partially")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("watchparty: reorder commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	for _, it := range updated {
		s.publishEvent(ctx, EventItemUpdate, partyID, it)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func prefixedQueueItemColumns(prefix string) string {
	return prefix + `id, ` + prefix + `party_id, ` + prefix + `position, ` + prefix + `status, ` + prefix + `type,
		` + prefix + `url, ` + prefix + `title, ` + prefix + `note_content, ` + prefix + `image_url,
		` + prefix + `is_completed, ` + prefix + `completed_at, ` + prefix + `completed_by_user_id, ` + prefix + `due_date,
		` + prefix + `added_by_session_id, ` + prefix + `added_by_name, ` + prefix + `created_at, ` + prefix + `updated_at`
}
