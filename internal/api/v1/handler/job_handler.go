package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// JobHandler handles generation job endpoints

type JobHandler struct {
	jobService       service.JobService
	admissionService service.AdmissionService
	validate         *validator.Validate
	logger           zerolog.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(
	jobService service.JobService,
	admissionService service.AdmissionService,
	validate *validator.Validate,
	logger zerolog.Logger,
) *JobHandler {
	return &JobHandler{
		jobService:       jobService,
		admissionService: admissionService,
		validate:         validate,
		logger:           logger.With().Str("handler", "JobHandler").Logger(),
	}
}

// RegisterRoutes mounts job routes under /jobs and /jobs/{id}
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/jobs", authMw(http.HandlerFunc(h.handleJobs)))
	mux.Handle("/jobs/", authMw(http.HandlerFunc(h.handleJob)))
}

func (h *JobHandler) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createJob(w, r)
	case http.MethodGet:
		h.listJobs(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *JobHandler) handleJob(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if !strings.HasPrefix(path, "/jobs/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.pollJob(w, r)
	case http.MethodPost:
		if strings.HasSuffix(path, "/cancel") {
			h.cancelJob(w, r)
			return
		}
		http.NotFound(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// createJob godoc
// @Summary Dispatch a generation job
// @Description Runs admission control and dispatches a prediction to the external provider.
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body dto.JobCreateDTO true "Generation request"
// @Success 201 {object} dto.JobResponseDTO
// @Failure 400 {string} string "Invalid JSON payload"
// @Failure 401 {string} string "Unauthorized: User ID not found in context"
// @Failure 402 {object} dto.AdmissionCheckResponseDTO "Insufficient credit"
// @Failure 429 {object} dto.AdmissionCheckResponseDTO "Rate limited"
// @Failure 502 {object} dto.JobResponseDTO "Dispatch to provider failed"
// @Failure 503 {string} string "Admission check unavailable"
// @Router /jobs [post]
func (h *JobHandler) createJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}
	var req dto.JobCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	class := service.OperationClass(req.OperationClass)
	if req.OperationClass == "" {
		class = service.OpImageGeneration
	}

	result, err := h.admissionService.Authorize(r.Context(), userID, class)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Admission check failed during dispatch")
		http.Error(w, "Admission check unavailable", http.StatusServiceUnavailable)
		return
	}
	if result.Decision != service.DecisionProceed {
		status := http.StatusTooManyRequests
		if result.Decision == service.DecisionInsufficientCredit {
			status = http.StatusPaymentRequired
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(admissionResponse(result))
		return
	}

	job, err := h.jobService.Dispatch(r.Context(), userID, service.DispatchRequest{
		Class:         class,
		Prompt:        req.Prompt,
		Vibe:          req.Vibe,
		Style:         req.Style,
		InputImageURL: req.InputImageURL,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Dispatch failed")
		http.Error(w, "Failed to dispatch job", http.StatusInternalServerError)
		return
	}

	// A job that comes back already failed means the provider rejected the
	// submission; no credits were consumed.
	status := http.StatusCreated
	if job.Status == model.JobStatusFailed {
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(jobResponse(job))
}

// pollJob godoc
// @Summary Poll a generation job
// @Description Refreshes the job from the provider; safe to call repeatedly.
// @Tags jobs
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} dto.JobResponseDTO
// @Failure 401 {string} string "Unauthorized: User ID not found in context"
// @Failure 404 {string} string "Job not found"
// @Failure 502 {string} string "Provider unavailable"
// @Router /jobs/{jobId} [get]
func (h *JobHandler) pollJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/jobs/")

	job, err := h.jobService.Poll(r.Context(), userID, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Poll failed")
		http.Error(w, "Provider unavailable, try again", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobResponse(job))
}

// listJobs godoc
// @Summary List the caller's generation jobs
// @Tags jobs
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {array} dto.JobResponseDTO
// @Failure 401 {string} string "Unauthorized: User ID not found in context"
// @Failure 500 {string} string "Failed to list jobs"
// @Router /jobs [get]
func (h *JobHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	jobs, err := h.jobService.ListJobs(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list jobs")
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	resp := make([]dto.JobResponseDTO, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, jobResponse(&jobs[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// cancelJob godoc
// @Summary Cancel a generation job
// @Description Best-effort provider cancel; the job is marked failed locally regardless.
// @Tags jobs
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} dto.JobResponseDTO
// @Failure 401 {string} string "Unauthorized: User ID not found in context"
// @Failure 404 {string} string "Job not found"
// @Failure 500 {string} string "Failed to cancel job"
// @Router /jobs/{jobId}/cancel [post]
func (h *JobHandler) cancelJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}
	jobID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/cancel")

	job, err := h.jobService.Cancel(r.Context(), userID, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Cancel failed")
		http.Error(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobResponse(job))
}

func jobResponse(job *model.GenerationJob) dto.JobResponseDTO {
	return dto.JobResponseDTO{
		JobID:          job.ID,
		ExternalHandle: job.ExternalHandle,
		Status:         string(job.Status),
		ResultURL:      job.ResultURL,
		Error:          job.ErrorReason,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}
