package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/renxuetao/cskefu/internal/cache"
	"github.com/renxuetao/cskefu/internal/notify"
	"github.com/renxuetao/cskefu/internal/storage"
	"github.com/renxuetao/cskefu/internal/store"
	"github.com/rs/zerolog"
)

// AdminHandler serves engine maintenance endpoints
type AdminHandler struct {
	store    store.Store
	presence *cache.PresenceCache
	hub      *notify.AgentHub
	archive  storage.Archive
	logger   zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(st store.Store, presence *cache.PresenceCache, hub *notify.AgentHub, archive storage.Archive, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		store:    st,
		presence: presence,
		hub:      hub,
		archive:  archive,
		logger:   logger,
	}
}

// Status handles GET /api/admin/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tenants":         h.store.Tenants(),
		"presenceEntries": h.presence.Size(),
		"connectedAgents": h.hub.AgentCount(),
	})
}

// WipeArchive truncates the service record archive
func (h *AdminHandler) WipeArchive(w http.ResponseWriter, r *http.Request) {
	if err := h.archive.TruncateAll(); err != nil {
		h.logger.Error().Err(err).Msg("failed to truncate archive")
		http.Error(w, fmt.Sprintf(`{"error":"failed to truncate: %s"}`, err), http.StatusInternalServerError)
		return
	}

	h.logger.Info().Msg("service record archive truncated")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "archive truncated",
	})
}
