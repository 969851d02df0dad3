// Package api provides HTTP handlers for the sync engine's endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/veridian-apps/ledgersync/internal/engine"
	"github.com/veridian-apps/ledgersync/internal/models"
)

// attentionListLimit caps the needs-attention listing.
const attentionListLimit = 100

// syncNowHandler triggers a sync pass for the tenant ("sync now" button).
func (s *Server) syncNowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	tenantID := r.PathValue("tenant")
	if tenantID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant is required"))
		return
	}
	slog.Debug("Server.syncNowHandler: manual sync requested", "tenantID", tenantID)

	report, err := s.engine.RunSyncOnce(context.Background(), tenantID)
	if err != nil {
		if errors.Is(err, engine.ErrSyncInFlight) {
			writeJSONResponse(w, http.StatusConflict, models.Accepted("sync already in progress"))
			return
		}
		slog.Error("Server.syncNowHandler: sync failed", "tenantID", tenantID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

// statusHandler reports pending/failed counts for UI badges.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	if tenantID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant is required"))
		return
	}

	pending, err := s.engine.PendingCount(tenantID)
	if err != nil {
		slog.Error("Server.statusHandler: pending count failed", "tenantID", tenantID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to read outbox"))
		return
	}
	failed, err := s.engine.FailedCount(tenantID)
	if err != nil {
		slog.Error("Server.statusHandler: failed count failed", "tenantID", tenantID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to read outbox"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{
		"pending": pending,
		"failed":  failed,
	}))
}

// attentionHandler lists terminally failed entries and open conflicts,
// backing the "N items need attention" surface.
func (s *Server) attentionHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	if tenantID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant is required"))
		return
	}

	failed, err := s.engine.FailedEntries(tenantID, attentionListLimit)
	if err != nil {
		slog.Error("Server.attentionHandler: failed entries listing failed", "tenantID", tenantID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to read outbox"))
		return
	}
	conflicts, err := s.engine.OpenConflicts(tenantID, attentionListLimit)
	if err != nil {
		slog.Error("Server.attentionHandler: conflicts listing failed", "tenantID", tenantID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to read conflicts"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"failed":    failed,
		"conflicts": conflicts,
	}))
}
