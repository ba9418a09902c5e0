// internal/handlers/stock.go
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// StockHandler handles stock ledger HTTP requests
type StockHandler struct {
	service ports.StockService
	logger  *slog.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(service ports.StockService, logger *slog.Logger) *StockHandler {
	return &StockHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "stock")),
	}
}

// RecordMovement handles POST /api/v1/stock/movements
func (h *StockHandler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input ports.MovementInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Backfill mode is reserved for the seeder; the API always validates
	// strictly.
	movement, err := h.service.RecordMovement(ctx, input, domain.ModeStrict)
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, movement)
}

// ListMovements handles GET /api/v1/stock/movements
func (h *StockHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.ListMovements(ctx, h.parseListParams(r))
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, result)
}

// GetAvailability handles GET /api/v1/stock/{product_id}/available
func (h *StockHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID, err := uuid.Parse(r.PathValue("product_id"))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	available, err := h.service.TotalAvailable(ctx, productID)
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"product_id": productID,
		"available":  available,
	})
}

// GetStockDetail handles GET /api/v1/stock/{product_id}
func (h *StockHandler) GetStockDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID, err := uuid.Parse(r.PathValue("product_id"))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	detail, err := h.service.StockDetail(ctx, productID)
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, detail)
}

// parseListParams parses query parameters for listing movements
func (h *StockHandler) parseListParams(r *http.Request) ports.MovementListParams {
	params := ports.MovementListParams{
		Page:      1,
		PageSize:  50,
		SortOrder: "desc",
	}

	q := r.URL.Query()
	if page := q.Get("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			params.Page = p
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			if l > 200 {
				params.PageSize = 200
			} else {
				params.PageSize = l
			}
		}
	}

	if product := q.Get("product_id"); product != "" {
		if id, err := uuid.Parse(product); err == nil {
			params.ProductID = &id
		}
	}
	if supplier := q.Get("supplier_id"); supplier != "" {
		if id, err := uuid.Parse(supplier); err == nil {
			params.SupplierID = &id
		}
	}
	params.MovementType = q.Get("type")
	params.AvailableOnly = q.Get("available") == "true"

	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			params.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			params.To = &t
		}
	}
	if order := q.Get("order"); order == "asc" || order == "desc" {
		params.SortOrder = order
	}

	return params
}
