// internal/handlers/supplier.go
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// SupplierHandler handles supplier HTTP requests
type SupplierHandler struct {
	suppliers ports.SupplierRepository
	logger    *slog.Logger
}

// NewSupplierHandler creates a new supplier handler
func NewSupplierHandler(suppliers ports.SupplierRepository, logger *slog.Logger) *SupplierHandler {
	return &SupplierHandler{
		suppliers: suppliers,
		logger:    logger.With(slog.String("handler", "supplier")),
	}
}

// CreateSupplierRequest represents the request body for creating a supplier
type CreateSupplierRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// CreateSupplier handles POST /api/v1/suppliers
func (h *SupplierHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateSupplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	supplier := domain.NewSupplier(req.Name)
	supplier.Email = req.Email
	supplier.Phone = req.Phone
	if err := supplier.Validate(); err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	supplier.PrepareForStorage()
	if err := h.suppliers.Save(ctx, supplier); err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(ctx, "supplier created",
		slog.String("supplier_id", supplier.ID.String()))
	respondJSON(w, h.logger, http.StatusCreated, supplier)
}

// GetSupplier handles GET /api/v1/suppliers/{id}
func (h *SupplierHandler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid supplier ID format")
		return
	}

	supplier, err := h.suppliers.FindByID(ctx, id)
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}
	if supplier == nil {
		respondError(w, h.logger, http.StatusNotFound, "Supplier not found")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, supplier)
}
