package party

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "missing party id")
		return
	}

	// Gate 2: body shape.
	var body struct {
		SessionID   string  `json:"sessionId"`
		Type        string  `json:"type"`
		Status      string  `json:"status"`
		Position    float64 `json:"position"`
		AddedByName string  `json:"addedByName"`
		URL         string  `json:"url"`
		Title       string  `json:"title"`
		NoteContent string  `json:"noteContent"`
		ImageURL    string  `json:"imageUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.Type = strings.TrimSpace(strings.ToLower(body.Type))
	body.URL = strings.TrimSpace(body.URL)
	body.Title = strings.TrimSpace(body.Title)
	if body.Status == "" {
		body.Status = StatusPending
	}

	if !validType(body.Type) {
		writeError(w, http.StatusBadRequest, "unsupported item type")
		return
	}
	if !validStatus(body.Status) {
		writeError(w, http.StatusBadRequest, "invalid item status")
		return
	}
	switch body.Type {
	case TypeNote:
		if strings.TrimSpace(body.NoteContent) == "" {
			writeError(w, http.StatusBadRequest, "noteContent is required for note items")
			return
		}
	case TypeImage:
		if body.ImageURL == "" {
			writeError(w, http.StatusBadRequest, "imageUrl is required for image items")
			return
		}
	default:
		if body.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required for "+body.Type+" items")
			return
		}
	}
	if len(body.Title) > 300 {
		writeError(w, http.StatusBadRequest, "title must be at most 300 characters")
		return
	}

	_, id, apiErr := s.authorize(ctx, r, partyID, body.SessionID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	var it QueueItem
	err := scanQueueItem(s.db.QueryRow(ctx, `
		INSERT INTO queue_items (
			party_id, position, status, type,
			url, title, note_content, image_url,
			added_by_session_id, added_by_name
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+queueItemColumns+`
	`,
		partyID, body.Position, body.Status, body.Type,
		body.URL, body.Title, body.NoteContent, body.ImageURL,
		id.SessionID, body.AddedByName,
	), &it)
	if err != nil {
		log.Printf("watchparty: add item insert: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, EventItemInsert, partyID, it)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"item":    it,
	})
}

// handleUpdateItem is a single-item PATCH discriminated by "action".
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	itemID := chi.URLParam(r, "itemId")
	if partyID == "" || itemID == "" {
		writeError(w, http.StatusBadRequest, "missing party or item id")
		return
	}

	var body struct {
		SessionID string `json:"sessionId"`
		Action    string `json:"action"`

		Position          *float64   `json:"position"`
		NoteContent       *string    `json:"noteContent"`
		IsCompleted       *bool      `json:"isCompleted"`
		CompletedAt       *time.Time `json:"completedAt"`
		CompletedByUserID *string    `json:"completedByUserId"`
		DueDate           *time.Time `json:"dueDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Gate 2: each action names exactly the fields it updates.
	var setClause string
	var args []any
	switch body.Action {
	case "updatePosition":
		if body.Position == nil {
			writeError(w, http.StatusBadRequest, "position is required")
			return
		}
		setClause = "position = $3"
		args = append(args, *body.Position)
	case "updateNote":
		if body.NoteContent == nil {
			writeError(w, http.StatusBadRequest, "noteContent is required")
			return
		}
		setClause = "note_content = $3"
		args = append(args, *body.NoteContent)
	case "toggleComplete":
		if body.IsCompleted == nil {
			writeError(w, http.StatusBadRequest, "isCompleted is required")
			return
		}
		setClause = "is_completed = $3, completed_at = $4, completed_by_user_id = $5"
		args = append(args, *body.IsCompleted, body.CompletedAt, body.CompletedByUserID)
	case "updateDueDate":
		setClause = "due_date = $3"
		args = append(args, body.DueDate)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	_, _, apiErr := s.authorize(ctx, r, partyID, body.SessionID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	queryArgs := append([]any{itemID, partyID}, args...)
	var it QueueItem
	err := scanQueueItem(s.db.QueryRow(ctx, `
		UPDATE queue_items
		SET `+setClause+`, updated_at = now()
		WHERE id = $1 AND party_id = $2
		RETURNING `+queueItemColumns+`
	`, queryArgs...), &it)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		log.Printf("watchparty: update item %s: %v", body.Action, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, EventItemUpdate, partyID, it)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	itemID := chi.URLParam(r, "itemId")
	if partyID == "" || itemID == "" {
		writeError(w, http.StatusBadRequest, "missing party or item id")
		return
	}

	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	_, _, apiErr := s.authorize(ctx, r, partyID, body.SessionID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM queue_items
		WHERE id = $1 AND party_id = $2
	`, itemID, partyID)
	if err != nil {
		log.Printf("watchparty: delete item: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	s.publishEvent(ctx, EventItemDelete, partyID, map[string]any{
		"id":      itemID,
		"partyId": partyID,
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
