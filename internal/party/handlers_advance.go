package party

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// handleAdvanceQueue moves the party forward: the currently-showing item (if
// named) becomes shown, and the first pending item (if named) becomes showing.
// Both transitions commit in one transaction so the at-most-one-showing
// invariant holds at every committed instant.
func (s *Server) handleAdvanceQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "missing party id")
		return
	}

	var body struct {
		SessionID          string `json:"sessionId"`
		ShowingItemID      string `json:"showingItemId"`
		FirstPendingItemID string `json:"firstPendingItemId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ShowingItemID == "" && body.FirstPendingItemID == "" {
		writeError(w, http.StatusBadRequest, "showingItemId or firstPendingItemId is required")
		return
	}

	_, _, apiErr := s.authorize(ctx, r, partyID, body.SessionID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Printf("watchparty: advance begin tx: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	var changed []QueueItem

	if body.ShowingItemID != "" {
		var it QueueItem
		err := scanQueueItem(tx.QueryRow(ctx, `
			UPDATE queue_items
			SET status = 'shown', updated_at = now()
			WHERE id = $1 AND party_id = $2 AND status = 'showing'
			RETURNING `+queueItemColumns+`
		`, body.ShowingItemID, partyID), &it)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("watchparty: advance retire showing: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		// ErrNoRows means another client already retired it; that is fine,
		// advancing is idempotent per item.
		if err == nil {
			changed = append(changed, it)
		}
	}

	if body.FirstPendingItemID != "" {
		var it QueueItem
		err := scanQueueItem(tx.QueryRow(ctx, `
			UPDATE queue_items
			SET status = 'showing', updated_at = now()
			WHERE id = $1 AND party_id = $2 AND status = 'pending'
			  AND NOT EXISTS (
				SELECT 1 FROM queue_items
				WHERE party_id = $2 AND status = 'showing' AND id <> $1
			  )
			RETURNING `+queueItemColumns+`
		`, body.FirstPendingItemID, partyID), &it)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("watchparty: advance promote pending: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if err == nil {
			changed = append(changed, it)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("watchparty: advance commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	for _, it := range changed {
		s.publishEvent(ctx, EventItemUpdate, partyID, it)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
