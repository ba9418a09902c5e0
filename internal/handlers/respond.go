// internal/handlers/respond.go
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/emartell/storeflow-be/internal/core/domain"
)

func respondJSON(w http.ResponseWriter, logger *slog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response",
			slog.String("error", err.Error()))
	}
}

func respondError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	respondJSON(w, logger, status, map[string]string{"error": message})
}

// respondDomainError maps the error taxonomy onto HTTP statuses: validation
// to 400, missing entities to 404, stock shortfalls and illegal state
// transitions to 409, consistency violations and everything unexpected to
// 500. Business rejections are not error-logged; broken invariants are.
func respondDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ctx := r.Context()

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		respondError(w, logger, http.StatusBadRequest, ve.Message)
		return
	}

	var nfe *domain.NotFoundError
	if errors.As(err, &nfe) {
		respondError(w, logger, http.StatusNotFound, nfe.Error())
		return
	}

	var ise *domain.InsufficientStockError
	if errors.As(err, &ise) {
		respondJSON(w, logger, http.StatusConflict, map[string]interface{}{
			"error":      "insufficient stock",
			"shortfalls": ise.Shortfalls,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrNotCheckPayment),
		errors.Is(err, domain.ErrAlreadyBounced),
		errors.Is(err, domain.ErrNotBounced),
		errors.Is(err, domain.ErrBouncedUnpaid):
		respondError(w, logger, http.StatusConflict, err.Error())
		return
	}

	logger.ErrorContext(ctx, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	respondError(w, logger, http.StatusInternalServerError, "Internal server error")
}
