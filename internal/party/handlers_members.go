package party

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

const (
	defaultPartyTTL = 24 * time.Hour
	maxPartyTTL     = 7 * 24 * time.Hour
)

func (s *Server) handleCreateParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Name       string `json:"name"`
		SessionID  string `json:"sessionId"`
		HostName   string `json:"hostName"`
		TTLMinutes int    `json:"ttlMinutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || len(body.Name) > 100 {
		writeError(w, http.StatusBadRequest, "name must be between 1 and 100 characters")
		return
	}
	if body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	ttl := defaultPartyTTL
	if body.TTLMinutes > 0 {
		ttl = time.Duration(body.TTLMinutes) * time.Minute
		if ttl > maxPartyTTL {
			ttl = maxPartyTTL
		}
	}

	if s.db == nil {
		writeError(w, http.StatusInternalServerError, "server storage is not configured")
		return
	}

	uid := s.bearerUserID(r)
	var userID *string
	if uid != "" {
		userID = &uid
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Printf("watchparty: create party begin tx: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	var p Party
	err = tx.QueryRow(ctx, `
		INSERT INTO parties (code, name, host_session_id, expires_at)
		VALUES ($1, $2, $3, now() + $4::interval)
		RETURNING id, code, name, host_session_id, created_at, expires_at
	`, newPartyCode(), body.Name, body.SessionID, ttl.String()).Scan(
		&p.ID, &p.Code, &p.Name, &p.HostSessionID, &p.CreatedAt, &p.ExpiresAt,
	)
	if err != nil {
		log.Printf("watchparty: create party insert: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	// The host seat is fixed at creation; no later member ever becomes host.
	var m Member
	err = tx.QueryRow(ctx, `
		INSERT INTO party_members (party_id, session_id, user_id, name, is_host)
		VALUES ($1, $2, $3, $4, true)
		RETURNING party_id, session_id, user_id, name, is_host, joined_at
	`, p.ID, body.SessionID, userID, body.HostName).Scan(
		&m.PartyID, &m.SessionID, &m.UserID, &m.Name, &m.IsHost, &m.JoinedAt,
	)
	if err != nil {
		log.Printf("watchparty: create party host member: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("watchparty: create party commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, EventMemberInsert, p.ID, m)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"party":   p,
	})
}

func (s *Server) handleGetParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "missing party id")
		return
	}
	if s.db == nil {
		writeError(w, http.StatusInternalServerError, "server storage is not configured")
		return
	}

	p, err := s.loadParty(ctx, partyID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "party not found")
		return
	}
	if err != nil {
		log.Printf("watchparty: get party: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if p.Expired(s.now()) {
		writeError(w, http.StatusGone, "party has expired")
		return
	}

	members, err := s.listMembers(ctx, partyID)
	if err != nil {
		log.Printf("watchparty: get party members: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	// Shown items are history, not part of the live view.
	items, err := s.listLiveItems(ctx, partyID)
	if err != nil {
		log.Printf("watchparty: get party items: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"party":   p,
		"members": members,
		"items":   items,
	})
}

func (s *Server) handleJoinParty(w http.ResponseWriter, r *http.Request) {
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
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "party not found")
		return
	}
	if err != nil {
		log.Printf("watchparty: join load party: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if p.Expired(s.now()) {
		writeError(w, http.StatusGone, "party has expired")
		return
	}

	uid := s.bearerUserID(r)
	var userID *string
	if uid != "" {
		userID = &uid
	}

	// Rejoining the same seat refreshes the name rather than erroring.
	var m Member
	err = s.db.QueryRow(ctx, `
		INSERT INTO party_members (party_id, session_id, user_id, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (party_id, session_id)
		DO UPDATE SET name = EXCLUDED.name, user_id = COALESCE(EXCLUDED.user_id, party_members.user_id)
		RETURNING party_id, session_id, user_id, name, is_host, joined_at
	`, partyID, body.SessionID, userID, body.Name).Scan(
		&m.PartyID, &m.SessionID, &m.UserID, &m.Name, &m.IsHost, &m.JoinedAt,
	)
	if err != nil {
		log.Printf("watchparty: join insert member: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, EventMemberInsert, partyID, m)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"member":  m,
	})
}

func (s *Server) handleLeaveParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partyID := chi.URLParam(r, "id")
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "missing party id")
		return
	}

	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	_, id, apiErr := s.authorize(ctx, r, partyID, body.SessionID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM party_members
		WHERE party_id = $1 AND session_id = $2
	`, partyID, id.SessionID)
	if err != nil {
		log.Printf("watchparty: leave delete member: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if tag.RowsAffected() > 0 {
		s.publishEvent(ctx, EventMemberDelete, partyID, map[string]any{
			"partyId":   partyID,
			"sessionId": id.SessionID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) listMembers(ctx context.Context, partyID string) ([]Member, error) {
	rows, err := s.db.Query(ctx, `
		SELECT party_id, session_id, user_id, name, is_host, joined_at
		FROM party_members
		WHERE party_id = $1
		ORDER BY joined_at
	`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.PartyID, &m.SessionID, &m.UserID, &m.Name, &m.IsHost, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Server) listLiveItems(ctx context.Context, partyID string) ([]QueueItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+queueItemColumns+`
		FROM queue_items
		WHERE party_id = $1 AND status <> 'shown'
		ORDER BY position
	`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]QueueItem, 0)
	for rows.Next() {
		var it QueueItem
		if err := scanQueueItem(rows, &it); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// newPartyCode generates a short join code.
func newPartyCode() string {
	const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
