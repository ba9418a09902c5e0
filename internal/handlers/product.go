// internal/handlers/product.go
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// ProductHandler handles product catalog HTTP requests. Catalog maintenance
// is plain CRUD, so the handler talks to the repository directly.
type ProductHandler struct {
	products ports.ProductRepository
	logger   *slog.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(products ports.ProductRepository, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		logger:   logger.With(slog.String("handler", "product")),
	}
}

// CreateProductRequest represents the request body for creating a product
type CreateProductRequest struct {
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	FixedPrice        decimal.Decimal `json:"fixed_price"`
	DiscountPct       decimal.Decimal `json:"discount_pct,omitempty"`
	LowStockThreshold int             `json:"low_stock_threshold,omitempty"`
}

// CreateProduct handles POST /api/v1/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	product := domain.NewProduct(req.Code, req.Name, req.FixedPrice)
	product.Description = req.Description
	product.DiscountPct = req.DiscountPct
	product.LowStockThreshold = req.LowStockThreshold
	if err := product.Validate(); err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	if existing, err := h.products.FindByCode(ctx, product.Code); err == nil && existing != nil {
		respondError(w, h.logger, http.StatusConflict, "A product with this code already exists")
		return
	}

	product.PrepareForStorage()
	if err := h.products.Save(ctx, product); err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID.String()),
		slog.String("code", product.Code))
	respondJSON(w, h.logger, http.StatusCreated, product)
}

// GetProduct handles GET /api/v1/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.products.FindByID(ctx, id)
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}
	if product == nil {
		respondError(w, h.logger, http.StatusNotFound, "Product not found")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, product)
}

// UpdateProduct handles PUT /api/v1/products/{id}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := h.products.FindByID(ctx, id)
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}
	if product == nil {
		respondError(w, h.logger, http.StatusNotFound, "Product not found")
		return
	}

	product.Code = req.Code
	product.Name = req.Name
	product.Description = req.Description
	product.FixedPrice = req.FixedPrice
	product.DiscountPct = req.DiscountPct
	product.LowStockThreshold = req.LowStockThreshold
	if err := product.Validate(); err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	if err := h.products.Update(ctx, product); err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, product)
}

// ListProducts handles GET /api/v1/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := ports.ProductListParams{
		Page:     1,
		PageSize: 50,
	}
	q := r.URL.Query()
	if page := q.Get("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			params.Page = p
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 && l <= 100 {
			params.PageSize = l
		}
	}
	params.Search = q.Get("search")
	params.ActiveOnly = q.Get("active") == "true"
	params.SortBy = q.Get("sort")
	if order := q.Get("order"); order == "asc" || order == "desc" {
		params.SortOrder = order
	}

	products, totalCount, err := h.products.List(ctx, params)
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"products":    products,
		"page":        params.Page,
		"page_size":   params.PageSize,
		"total_count": totalCount,
	})
}

// LowStock handles GET /api/v1/products/low-stock
func (h *ProductHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.products.LowStock(ctx)
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// DeactivateProduct handles DELETE /api/v1/products/{id}
func (h *ProductHandler) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	if err := h.products.Deactivate(ctx, id); err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]string{
		"message":    "Product deactivated",
		"product_id": id.String(),
	})
}
