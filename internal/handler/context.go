package handler

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/plutus-ai/plutus/internal/memory"
	"github.com/plutus-ai/plutus/internal/middleware"
	"github.com/plutus-ai/plutus/internal/service"
	"github.com/plutus-ai/plutus/pkg/logger"
)

// ContextHandler handles user context and insight endpoints.
type ContextHandler struct {
	service *service.AdvisorService
	logger  *logger.Logger
}

// NewContextHandler creates a new context handler.
func NewContextHandler(svc *service.AdvisorService, log *logger.Logger) *ContextHandler {
	return &ContextHandler{
		service: svc,
		logger:  log,
	}
}

// Get handles GET /api/v1/context. An optional version query parameter
// returns that historical snapshot instead of the current one.
func (h *ContextHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if v := r.URL.Query().Get("version"); v != "" {
		version, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid version")
			return
		}
		uc, err := h.service.ContextVersion(ctx, userID, version)
		if err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				writeError(w, http.StatusNotFound, "context version not found")
				return
			}
			h.logger.Error("failed to get context version", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to get context version")
			return
		}
		writeJSON(w, http.StatusOK, uc)
		return
	}

	uc, err := h.service.GetContext(ctx, userID)
	if err != nil {
		h.logger.Error("failed to get context", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "context unavailable")
		return
	}

	writeJSON(w, http.StatusOK, uc)
}

// Refresh handles POST /api/v1/context/refresh
func (h *ContextHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	uc, err := h.service.RefreshContext(ctx, userID)
	if err != nil {
		h.logger.Error("failed to refresh context", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "context refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, uc)
}

// Insights handles GET /api/v1/insights
func (h *ContextHandler) Insights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	resp, err := h.service.Insights(ctx, userID, parseLimit(r, 50))
	if err != nil {
		h.logger.Error("failed to list insights", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list insights")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
