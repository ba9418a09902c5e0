// internal/handlers/customer.go
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// CustomerHandler handles customer HTTP requests
type CustomerHandler struct {
	customers ports.CustomerRepository
	logger    *slog.Logger
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(customers ports.CustomerRepository, logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{
		customers: customers,
		logger:    logger.With(slog.String("handler", "customer")),
	}
}

// customerResponse decorates a customer with the credit headroom left for
// deferred sales.
type customerResponse struct {
	*domain.Customer
	AvailableCredit decimal.Decimal `json:"available_credit"`
}

func newCustomerResponse(c *domain.Customer) customerResponse {
	return customerResponse{Customer: c, AvailableCredit: c.AvailableCredit()}
}

// CreateCustomerRequest represents the request body for creating a customer
type CreateCustomerRequest struct {
	Name        string          `json:"name"`
	Email       string          `json:"email,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	CreditLimit decimal.Decimal `json:"credit_limit,omitempty"`
}

// CreateCustomer handles POST /api/v1/customers
func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	customer := domain.NewCustomer(req.Name, req.CreditLimit)
	customer.Email = req.Email
	customer.Phone = req.Phone
	if err := customer.Validate(); err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	customer.PrepareForStorage()
	if err := h.customers.Save(ctx, customer); err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(ctx, "customer created",
		slog.String("customer_id", customer.ID.String()))
	respondJSON(w, h.logger, http.StatusCreated, newCustomerResponse(customer))
}

// GetCustomer handles GET /api/v1/customers/{id}
func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid customer ID format")
		return
	}

	customer, err := h.customers.FindByID(ctx, id)
	if err != nil {
		respondDomainError(w, r, h.logger, err)
		return
	}
	if customer == nil {
		respondError(w, h.logger, http.StatusNotFound, "Customer not found")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, newCustomerResponse(customer))
}
