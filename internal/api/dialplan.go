// Package api exposes the administrative REST surface: campaign
// operations, reporting queries, and maintenance endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/renxuetao/cskefu/internal/auth"
	"github.com/renxuetao/cskefu/internal/dialplan"
	"github.com/rs/zerolog"
)

// DialplanHandler serves campaign run operations
type DialplanHandler struct {
	svc    *dialplan.Service
	logger zerolog.Logger
}

// NewDialplanHandler creates a new DialplanHandler
func NewDialplanHandler(svc *dialplan.Service, logger zerolog.Logger) *DialplanHandler {
	return &DialplanHandler{svc: svc, logger: logger}
}

// RequireAdmin allows only the admin role through.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || !auth.HasRole(claims, "admin") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSupervisorOrAdmin allows the supervisor and admin roles through.
func RequireSupervisorOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || (claims.Role != "admin" && claims.Role != "supervisor") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"supervisor or admin role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run handles POST /api/callout/dialplan: one operation per request,
// selected by the ops field. Operation outcomes are reported via the rc
// field in a 200 response; only a malformed request is an HTTP error.
func (h *DialplanHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ops        string `json:"ops"`
		DialplanID string `json:"dialplanId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	req.Ops = strings.ToLower(strings.TrimSpace(req.Ops))
	req.DialplanID = strings.TrimSpace(req.DialplanID)
	if req.Ops == "" || req.DialplanID == "" {
		http.Error(w, `{"error":"ops and dialplanId are required"}`, http.StatusBadRequest)
		return
	}

	result := h.svc.Run(r.Context(), req.Ops, req.DialplanID)

	h.logger.Info().
		Str("ops", req.Ops).
		Str("dialplan_id", req.DialplanID).
		Int("rc", result.RC).
		Msg("dialplan operation handled")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
