package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/dates"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/middleware"
	"github.com/stitchbook/api/internal/service"
)

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService; narrow interface for testability.
type PaymentServicer interface {
	Add(ctx context.Context, key service.OrderKey, in service.PaymentInput, createdBy uuid.UUID) (*service.OrderUpdate, error)
	Update(ctx context.Context, key service.OrderKey, paymentID uuid.UUID, in service.PaymentInput) (*service.OrderUpdate, error)
	Delete(ctx context.Context, key service.OrderKey, paymentID uuid.UUID) (*service.OrderUpdate, error)
	List(ctx context.Context, key service.OrderKey) ([]database.Payment, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	svc PaymentServicer
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// RegisterRoutes registers payment endpoints.
// Expected to be mounted inside /companies/{cid}/orders/{id}/payments.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Add)
	r.Put("/{pid}", h.Update)
	r.Delete("/{pid}", h.Delete)
}

// --- Request / Response types ---

type paymentRequest struct {
	Amount string `json:"amount"`
	Mode   string `json:"mode"`
	PaidOn string `json:"paid_on"`
}

type paymentResponse struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Amount     string    `json:"amount"`
	Mode       string    `json:"mode"`
	PaidOn     string    `json:"paid_on"`
	Type       *string   `json:"type"`
	CreatedBy  uuid.UUID `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func toPaymentResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:         p.ID,
		OrderID:    p.OrderID,
		CustomerID: p.CustomerID,
		Amount:     money(p.Amount),
		Mode:       p.Mode,
		PaidOn:     dates.FormatStorage(p.PaidOn),
		CreatedBy:  p.CreatedBy,
		CreatedAt:  p.CreatedAt,
	}
	if p.Type.Valid {
		resp.Type = &p.Type.String
	}
	return resp
}

// --- Handlers ---

// List handles GET /companies/{cid}/orders/{id}/payments.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	payments, err := h.svc.List(r.Context(), key)
	if err != nil {
		writeServiceError(w, "list payments", err)
		return
	}

	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = toPaymentResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Add handles POST /companies/{cid}/orders/{id}/payments.
func (h *PaymentHandler) Add(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	in, ok := decodePayment(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Add(r.Context(), key, in, claims.UserID)
	if err != nil {
		writeServiceError(w, "add payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderDetailResponse(res.Order, res.Payments, res.Summary))
}

// Update handles PUT /companies/{cid}/orders/{id}/payments/{pid}.
func (h *PaymentHandler) Update(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	in, ok := decodePayment(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Update(r.Context(), key, paymentID, in)
	if err != nil {
		writeServiceError(w, "update payment", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(res.Order, res.Payments, res.Summary))
}

// Delete handles DELETE /companies/{cid}/orders/{id}/payments/{pid}.
func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	res, err := h.svc.Delete(r.Context(), key, paymentID)
	if err != nil {
		writeServiceError(w, "delete payment", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(res.Order, res.Payments, res.Summary))
}

func decodePayment(w http.ResponseWriter, r *http.Request) (service.PaymentInput, bool) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return service.PaymentInput{}, false
	}

	if req.Amount == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount is required"})
		return service.PaymentInput{}, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return service.PaymentInput{}, false
	}

	paidOn, err := parseOptionalDate(req.PaidOn)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid paid_on"})
		return service.PaymentInput{}, false
	}

	return service.PaymentInput{Amount: amount, Mode: req.Mode, PaidOn: paidOn}, true
}
