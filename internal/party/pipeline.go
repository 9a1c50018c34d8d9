package party

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"

	"github.com/neonwatty/linkparty-sub000/internal/ratelimit"
)

// identity is the resolved caller: an authenticated user id when a bearer
// token verified, otherwise the session id carried in the request body.
type identity struct {
	UserID    string
	SessionID string
}

func (id identity) authenticated() bool { return id.UserID != "" }

type tokenClaims struct {
	UserID    string `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// requireSameOrigin is gate 1: a request carrying an Origin header that does
// not match the allowed origin is a cross-site write and is rejected outright.
// Requests without an Origin header (curl, native clients) pass through.
func (s *Server) requireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !s.originAllowed(origin) {
			writeError(w, http.StatusForbidden, "cross-origin request rejected")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if s.allowedOrigin == "" || s.allowedOrigin == "*" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	a, err := url.Parse(s.allowedOrigin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, a.Scheme) && strings.EqualFold(u.Host, a.Host)
}

// rateLimit buckets by authenticated user id when a valid bearer token is
// present, else by client IP.
func (s *Server) rateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if uid := s.bearerUserID(r); uid != "" {
				key = "user:" + uid
			}

			if err := l.TryAction(key); err != nil {
				var le *ratelimit.LimitError
				if errors.As(err, &le) {
					w.Header().Set("Retry-After", strconv.Itoa(le.RetryAfterSeconds()))
				}
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerUserID resolves the Authorization header to a user id, or "" when the
// header is absent or the token does not verify. Invalid tokens are not an
// error here: the caller falls back to session identity (gate 5).
func (s *Server) bearerUserID(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid || claims.TokenType != "access" {
		return ""
	}
	return claims.UserID
}

// authorize runs gates 3-6 for a mutation against partyID. sessionID comes
// from the already-parsed request body (gate 2 belongs to each handler since
// body shape differs per endpoint).
func (s *Server) authorize(ctx context.Context, r *http.Request, partyID, sessionID string) (*Party, identity, *apiError) {
	// Gate 3: the backing store must be reachable with service credentials.
	if s.db == nil {
		return nil, identity{}, errConfig("server storage is not configured")
	}

	// Gate 4: party exists and has not expired.
	p, err := s.loadParty(ctx, partyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, identity{}, errNotFound("party not found")
	}
	if err != nil {
		return nil, identity{}, errStore("database error")
	}
	if p.Expired(s.now()) {
		return nil, identity{}, errExpired("party has expired")
	}

	// Gate 5: bearer token wins, session id is the anonymous fallback.
	id := identity{UserID: s.bearerUserID(r), SessionID: sessionID}
	if !id.authenticated() && id.SessionID == "" {
		return nil, identity{}, errUnauthorized("missing credentials")
	}

	// Gate 6: the resolved identity must hold a membership row.
	member, err := s.isMember(ctx, partyID, id)
	if err != nil {
		return nil, identity{}, errStore("database error")
	}
	if !member {
		return nil, identity{}, errForbidden("not a member of this party")
	}

	return p, id, nil
}

func (s *Server) loadParty(ctx context.Context, id string) (*Party, error) {
	var p Party
	err := s.db.QueryRow(ctx, `
		SELECT id, code, name, host_session_id, created_at, expires_at
		FROM parties
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Name, &p.HostSessionID, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// isMember checks by user id for authenticated callers, by session id
// otherwise.
func (s *Server) isMember(ctx context.Context, partyID string, id identity) (bool, error) {
	var exists bool
	var err error
	if id.authenticated() {
		err = s.db.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM party_members WHERE party_id = $1 AND user_id = $2)
		`, partyID, id.UserID).Scan(&exists)
	} else {
		err = s.db.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM party_members WHERE party_id = $1 AND session_id = $2)
		`, partyID, id.SessionID).Scan(&exists)
	}
	return exists, err
}
