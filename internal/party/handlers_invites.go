package party

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Invite lets a member reserve a seat for someone who has not joined yet.
type Invite struct {
	PartyID            string    `json:"partyId"`
	ToSessionID        string    `json:"toSessionId"`
	ToName             string    `json:"toName"`
	InvitedBySessionID string    `json:"invitedBySessionId"`
	Status             string    `json:"status"` // "pending", "accepted"
	CreatedAt          time.Time `json:"createdAt"`
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "missing party id")
		return
	}

	var body struct {
		SessionID   string `json:"sessionId"`
		ToSessionID string `json:"toSessionId"`
		ToName      string `json:"toName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ToSessionID == "" {
		writeError(w, http.StatusBadRequest, "toSessionId is required")
		return
	}
	if body.ToSessionID == body.SessionID {
		writeError(w, http.StatusBadRequest, "cannot invite yourself")
		return
	}

	_, id, apiErr := s.authorize(ctx, r, partyID, body.SessionID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	var inv Invite
	err := s.db.QueryRow(ctx, `
		INSERT INTO party_invites (party_id, to_session_id, to_name, invited_by_session_id)
		VALUES ($1, $2, $3, $4)
		RETURNING party_id, to_session_id, to_name, invited_by_session_id, status, created_at
	`, partyID, body.ToSessionID, body.ToName, id.SessionID).Scan(
		&inv.PartyID, &inv.ToSessionID, &inv.ToName, &inv.InvitedBySessionID, &inv.Status, &inv.CreatedAt,
	)
	if isUniqueViolation(err) {
		// Two members raced to invite the same person.
		writeError(w, http.StatusConflict, "invite already exists")
		return
	}
	if err != nil {
		log.Printf("watchparty: create invite: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"invite":  inv,
	})
}

// handleAcceptInvite is a dual-table operation: mark the invite accepted, then
// create the membership row. There is no cross-table transaction primitive in
// the client-facing contract, so a failed secondary write reverts the primary
// one before returning.
func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "missing party id")
		return
	}

	var body struct {
		SessionID string `json:"sessionId"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if s.db == nil {
		writeError(w, http.StatusInternalServerError, "server storage is not configured")
		return
	}
	p, err := s.loadParty(ctx, partyID)
	if err != nil {
		writeError(w, http.StatusNotFound, "party not found")
		return
	}
	if p.Expired(s.now()) {
		writeError(w, http.StatusGone, "party has expired")
		return
	}

	// Primary write: claim the pending invite.
	tag, err := s.db.Exec(ctx, `
		UPDATE party_invites
		SET status = 'accepted'
		WHERE party_id = $1 AND to_session_id = $2 AND status = 'pending'
	`, partyID, body.SessionID)
	if err != nil {
		log.Printf("watchparty: accept invite update: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "no pending invite")
		return
	}

	uid := s.bearerUserID(r)
	var userID *string
	if uid != "" {
		userID = &uid
	}

	// Secondary write: the membership row the invite promised.
	var m Member
	err = s.db.QueryRow(ctx, `
		INSERT INTO party_members (party_id, session_id, user_id, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (party_id, session_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING party_id, session_id, user_id, name, is_host, joined_at
	`, partyID, body.SessionID, userID, body.Name).Scan(
		&m.PartyID, &m.SessionID, &m.UserID, &m.Name, &m.IsHost, &m.JoinedAt,
	)
	if err != nil {
		log.Printf("watchparty: accept invite member insert: %v", err)
		// Compensate: put the invite back so the accept can be retried.
		if _, revertErr := s.db.Exec(ctx, `
			UPDATE party_invites
			SET status = 'pending'
			WHERE party_id = $1 AND to_session_id = $2 AND status = 'accepted'
		`, partyID, body.SessionID); revertErr != nil {
			log.Printf("watchparty: accept invite revert: %v", revertErr)
		}
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, EventMemberInsert, partyID, m)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"member":  m,
	})
}
