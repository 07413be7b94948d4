package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

const accessCookie = "linkboard_access"

// accessGate rejects requests that carry neither the access cookie nor a
// matching bearer token. An empty token disables the gate.
func accessGate(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !hasAccess(r, token) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Error:         "access token required",
				CorrelationID: getCorrelationID(r.Context()),
			})
			return
		}
		next(w, r)
	}
}

func hasAccess(r *http.Request, token string) bool {
	if c, err := r.Cookie(accessCookie); err == nil && tokenEqual(c.Value, token) {
		return true
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return tokenEqual(strings.TrimPrefix(auth, "Bearer "), token)
	}
	return false
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

type accessRequest struct {
	Token string `json:"token"`
}

// handleAccess exchanges the shared token for the access cookie.
func handleAccess(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accessRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if token != "" && !tokenEqual(req.Token, token) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Error:         "invalid access token",
				CorrelationID: getCorrelationID(r.Context()),
			})
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     accessCookie,
			Value:    req.Token,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Now().Add(30 * 24 * time.Hour),
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
