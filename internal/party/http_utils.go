package party

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
)

// apiError maps a pipeline gate failure to one stable (status, message) pair.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func errValidation(msg string) *apiError   { return &apiError{http.StatusBadRequest, msg} }
func errUnauthorized(msg string) *apiError { return &apiError{http.StatusUnauthorized, msg} }
func errForbidden(msg string) *apiError    { return &apiError{http.StatusForbidden, msg} }
func errNotFound(msg string) *apiError     { return &apiError{http.StatusNotFound, msg} }
func errExpired(msg string) *apiError      { return &apiError{http.StatusGone, msg} }
func errConflict(msg string) *apiError     { return &apiError{http.StatusConflict, msg} }
func errStore(msg string) *apiError        { return &apiError{http.StatusInternalServerError, msg} }
func errConfig(msg string) *apiError       { return &apiError{http.StatusInternalServerError, msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAPIError(w http.ResponseWriter, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		writeError(w, ae.status, ae.msg)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
