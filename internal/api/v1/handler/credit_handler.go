package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// CreditHandler exposes read-only credit balance and history queries.
type CreditHandler struct {
	credits repository.CreditRepository
	logger  zerolog.Logger
}

// NewCreditHandler creates a new CreditHandler
func NewCreditHandler(credits repository.CreditRepository, logger zerolog.Logger) *CreditHandler {
	return &CreditHandler{
		credits: credits,
		logger:  logger.With().Str("handler", "CreditHandler").Logger(),
	}
}

// RegisterRoutes mounts credit routes
func (h *CreditHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/credits", authMw(http.HandlerFunc(h.getCredits)))
}

// getCredits godoc
// @Summary Get the caller's credit balance and recent transactions
// @Tags credits
// @Produce json
// @Success 200 {object} dto.CreditBalanceResponseDTO
// @Failure 401 {string} string "Unauthorized: User ID not found in context"
// @Failure 500 {string} string "Failed to read balance"
// @Router /credits [get]
func (h *CreditHandler) getCredits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	balance, err := h.credits.GetBalance(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to read balance")
		http.Error(w, "Failed to read balance", http.StatusInternalServerError)
		return
	}
	txs, err := h.credits.ListTransactions(r.Context(), userID, 50)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list transactions")
		http.Error(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}

	resp := dto.CreditBalanceResponseDTO{Balance: balance, Transactions: make([]dto.CreditTransactionDTO, 0, len(txs))}
	for _, t := range txs {
		resp.Transactions = append(resp.Transactions, dto.CreditTransactionDTO{
			ID:           t.ID,
			Amount:       t.Amount,
			Type:         t.Type,
			Description:  t.Description,
			BalanceAfter: t.BalanceAfter,
			CreatedAt:    t.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
