package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/service"
	"github.com/stitchbook/api/internal/validate"
)

const maxDisplayIDRetries = 3

// CustomerStore defines the database methods needed by customer handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CustomerStore interface {
	ListCustomers(ctx context.Context, arg database.ListCustomersParams) ([]database.Customer, error)
	GetCustomer(ctx context.Context, arg database.GetCustomerParams) (database.Customer, error)
	NextCustomerNumber(ctx context.Context, companyID uuid.UUID) (int32, error)
	CreateCustomer(ctx context.Context, arg database.CreateCustomerParams) (database.Customer, error)
	UpdateCustomer(ctx context.Context, arg database.UpdateCustomerParams) (database.Customer, error)
	SoftDeleteCustomer(ctx context.Context, arg database.SoftDeleteCustomerParams) (uuid.UUID, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
}

// CustomerHandler handles customer CRUD endpoints.
type CustomerHandler struct {
	store CustomerStore
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(store CustomerStore) *CustomerHandler {
	return &CustomerHandler{store: store}
}

// RegisterRoutes registers customer CRUD endpoints on the given Chi router.
// Expected to be mounted inside a company-scoped subrouter: /companies/{cid}/customers
func (h *CustomerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/orders", h.Orders)
	})
}

// --- Request / Response types ---

type customerRequest struct {
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Location string `json:"location"`
}

type customerResponse struct {
	ID        uuid.UUID `json:"id"`
	DisplayID string    `json:"display_id"`
	Name      string    `json:"name"`
	Mobile    string    `json:"mobile"`
	Location  *string   `json:"location"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCustomerResponse(c database.Customer) customerResponse {
	resp := customerResponse{
		ID:        c.ID,
		DisplayID: c.DisplayID,
		Name:      c.Name,
		Mobile:    c.Mobile,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Location.Valid {
		resp.Location = &c.Location.String
	}
	return resp
}

// validate trims the request and returns a user-facing message when it is
// unusable.
func (req *customerRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Mobile = validate.NormalizePhone(req.Mobile)
	req.Location = strings.TrimSpace(req.Location)
	if req.Name == "" {
		return "name is required"
	}
	if !validate.Phone(req.Mobile) {
		return "mobile must be 10 digits"
	}
	return ""
}

// --- Handlers ---

// List handles GET /companies/{cid}/customers. The optional q parameter
// matches name, mobile or display id.
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	limit, offset := parsePagination(r)

	customers, err := h.store.ListCustomers(r.Context(), database.ListCustomersParams{
		CompanyID: companyID,
		Search:    optionalText(r.URL.Query().Get("q")),
		Limit:     int32(limit),
		Offset:    int32(offset),
	})
	if err != nil {
		log.Printf("ERROR: list customers: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]customerResponse, len(customers))
	for i, c := range customers {
		resp[i] = toCustomerResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /companies/{cid}/customers/{id}.
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, customerID, ok := parseCustomerPath(w, r)
	if !ok {
		return
	}

	customer, err := h.store.GetCustomer(r.Context(), database.GetCustomerParams{ID: customerID, CompanyID: companyID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return
		}
		log.Printf("ERROR: get customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCustomerResponse(customer))
}

// Create handles POST /companies/{cid}/customers. The display id (C-0001,
// C-0002, ...) is allocated per company and retried when a concurrent
// request takes the same one.
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	for attempt := 0; attempt < maxDisplayIDRetries; attempt++ {
		n, err := h.store.NextCustomerNumber(r.Context(), companyID)
		if err != nil {
			log.Printf("ERROR: next customer number: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		customer, err := h.store.CreateCustomer(r.Context(), database.CreateCustomerParams{
			CompanyID: companyID,
			DisplayID: service.CustomerDisplayID(n),
			Name:      req.Name,
			Mobile:    req.Mobile,
			Location:  optionalText(req.Location),
		})
		if err == nil {
			writeJSON(w, http.StatusCreated, toCustomerResponse(customer))
			return
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue
		}
		log.Printf("ERROR: create customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusConflict, map[string]string{"error": "could not allocate a customer number, retry"})
}

// Update handles PUT /companies/{cid}/customers/{id}.
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	companyID, customerID, ok := parseCustomerPath(w, r)
	if !ok {
		return
	}

	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	customer, err := h.store.UpdateCustomer(r.Context(), database.UpdateCustomerParams{
		ID:        customerID,
		CompanyID: companyID,
		Name:      req.Name,
		Mobile:    req.Mobile,
		Location:  optionalText(req.Location),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return
		}
		log.Printf("ERROR: update customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCustomerResponse(customer))
}

// Delete handles DELETE /companies/{cid}/customers/{id}. Customers are
// deactivated, their orders stay.
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	companyID, customerID, ok := parseCustomerPath(w, r)
	if !ok {
		return
	}

	_, err := h.store.SoftDeleteCustomer(r.Context(), database.SoftDeleteCustomerParams{ID: customerID, CompanyID: companyID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return
		}
		log.Printf("ERROR: delete customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Orders returns order history for a customer.
func (h *CustomerHandler) Orders(w http.ResponseWriter, r *http.Request) {
	companyID, customerID, ok := parseCustomerPath(w, r)
	if !ok {
		return
	}

	limit, offset := parsePagination(r)

	orders, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		CompanyID:  companyID,
		CustomerID: pgtype.UUID{Bytes: customerID, Valid: true},
		Limit:      int32(limit),
		Offset:     int32(offset),
	})
	if err != nil {
		log.Printf("ERROR: list customer orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit, Offset: offset})
}

func parseCustomerPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return uuid.Nil, uuid.Nil, false
	}
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return companyID, customerID, true
}
