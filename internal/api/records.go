package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/renxuetao/cskefu/internal/storage"
	"github.com/rs/zerolog"
)

// RecordsHandler serves service record reporting queries from the archive
type RecordsHandler struct {
	archive storage.Archive
	logger  zerolog.Logger
}

// NewRecordsHandler creates a new RecordsHandler
func NewRecordsHandler(archive storage.Archive, logger zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{archive: archive, logger: logger}
}

// dateKeyOrToday returns the date query parameter or today's partition key.
func dateKeyOrToday(r *http.Request) string {
	if date := r.URL.Query().Get("date"); date != "" {
		return date
	}
	return time.Now().Format("2006-01-02")
}

// GetByDate handles GET /api/records?date=YYYY-MM-DD
func (h *RecordsHandler) GetByDate(w http.ResponseWriter, r *http.Request) {
	dateKey := dateKeyOrToday(r)

	records, err := h.archive.RecordsByDate(dateKey)
	if err != nil {
		h.logger.Error().Err(err).Str("date", dateKey).Msg("failed to query service records")
		http.Error(w, `{"error":"failed to query records"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"date":    dateKey,
		"count":   len(records),
		"records": records,
	})
}

// GetByAgent handles GET /api/records/agent/{agentID}?date=YYYY-MM-DD
func (h *RecordsHandler) GetByAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if agentID == "" {
		http.Error(w, `{"error":"agentID is required"}`, http.StatusBadRequest)
		return
	}
	dateKey := dateKeyOrToday(r)

	records, err := h.archive.RecordsByAgentAndDate(agentID, dateKey)
	if err != nil {
		h.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("date", dateKey).
			Msg("failed to query agent service records")
		http.Error(w, `{"error":"failed to query records"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"agentId": agentID,
		"date":    dateKey,
		"count":   len(records),
		"records": records,
	})
}
