package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// MaintenanceHandler exposes internal endpoints invoked by Cloud Scheduler.
type MaintenanceHandler struct {
	jobService service.JobService
	staleAfter time.Duration
	logger     zerolog.Logger
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(jobService service.JobService, staleAfter time.Duration, logger zerolog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		jobService: jobService,
		staleAfter: staleAfter,
		logger:     logger.With().Str("handler", "MaintenanceHandler").Logger(),
	}
}

// RegisterRoutes mounts internal maintenance routes
func (h *MaintenanceHandler) RegisterRoutes(mux *http.ServeMux, schedulerMw func(http.Handler) http.Handler) {
	mux.Handle("/jobs/sweep", schedulerMw(http.HandlerFunc(h.sweepStaleJobs)))
}

// sweepStaleJobs fails jobs stuck pending beyond the provider SLA. The
// tracker itself never times jobs out; this is the external janitor hook.
func (h *MaintenanceHandler) sweepStaleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	count, err := h.jobService.SweepStale(r.Context(), h.staleAfter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Stale job sweep failed")
		http.Error(w, "Sweep failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.SweepResponseDTO{FailedCount: count})
}
