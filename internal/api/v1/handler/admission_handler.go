package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// AdmissionHandler exposes the pre-flight admission check.
type AdmissionHandler struct {
	admissionService service.AdmissionService
	validate         *validator.Validate
	logger           zerolog.Logger
}

// NewAdmissionHandler creates a new AdmissionHandler
func NewAdmissionHandler(admissionService service.AdmissionService, validate *validator.Validate, logger zerolog.Logger) *AdmissionHandler {
	return &AdmissionHandler{
		admissionService: admissionService,
		validate:         validate,
		logger:           logger.With().Str("handler", "AdmissionHandler").Logger(),
	}
}

// RegisterRoutes mounts admission routes
func (h *AdmissionHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/admission-check", authMw(http.HandlerFunc(h.checkAdmission)))
}

// checkAdmission godoc
// @Summary Check admission for an operation class
// @Description Runs the rate-limit and credit checks without dispatching or debiting anything.
// @Tags admission
// @Accept json
// @Produce json
// @Param request body dto.AdmissionCheckDTO true "Operation class to check"
// @Success 200 {object} dto.AdmissionCheckResponseDTO
// @Failure 400 {string} string "Invalid JSON payload"
// @Failure 401 {string} string "Unauthorized: User ID not found in context"
// @Failure 503 {string} string "Admission check unavailable"
// @Router /admission-check [post]
func (h *AdmissionHandler) checkAdmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}
	var req dto.AdmissionCheckDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.admissionService.Authorize(r.Context(), userID, service.OperationClass(req.OperationClass))
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Admission check failed")
		http.Error(w, "Admission check unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(admissionResponse(result))
}

func admissionResponse(result *service.AdmissionResult) dto.AdmissionCheckResponseDTO {
	resp := dto.AdmissionCheckResponseDTO{
		Decision:  result.Decision,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt,
	}
	if result.Decision != service.DecisionRateLimited {
		required := result.RequiredBalance
		balance := result.Balance
		resp.RequiredBalance = &required
		resp.Balance = &balance
	}
	return resp
}
