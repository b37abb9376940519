package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/dates"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/enum"
	"github.com/stitchbook/api/internal/ledger"
	"github.com/stitchbook/api/internal/middleware"
	"github.com/stitchbook/api/internal/service"
	"github.com/stitchbook/api/internal/wizard"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	UpdateStatus(ctx context.Context, key service.OrderKey, status string) (*service.OrderUpdate, error)
	CancelOrder(ctx context.Context, key service.OrderKey) (*service.OrderUpdate, error)
	DeleteOrder(ctx context.Context, key service.OrderKey) error
}

// OrderStore defines the database methods needed by order read/update handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	GetCustomer(ctx context.Context, arg database.GetCustomerParams) (database.Customer, error)
	UpdateOrderDetails(ctx context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore) *OrderHandler {
	return &OrderHandler{svc: svc, store: store}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a company-scoped subrouter: /companies/{cid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.UpdateDetails)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/cancel", h.Cancel)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type customerInput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Location string `json:"location"`
}

type createOrderRequest struct {
	Customer     customerInput         `json:"customer"`
	OrderedOn    string                `json:"ordered_on"`
	DeliveryDate string                `json:"delivery_date"`
	Notes        string                `json:"notes"`
	Advance      string                `json:"advance"`
	AdvanceMode  string                `json:"advance_mode"`
	Items        []database.OutfitItem `json:"items"`
}

type updateOrderDetailsRequest struct {
	OrderedOn    *string `json:"ordered_on"`
	DeliveryDate *string `json:"delivery_date"`
	Notes        *string `json:"notes"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type itemResponse struct {
	Index int `json:"index"`
	database.OutfitItem
	Value string `json:"value"`
}

type orderResponse struct {
	ID           uuid.UUID      `json:"id"`
	CompanyID    uuid.UUID      `json:"company_id"`
	CustomerID   uuid.UUID      `json:"customer_id"`
	BillNo       string         `json:"bill_no"`
	OrderedOn    string         `json:"ordered_on"`
	DeliveryDate *string        `json:"delivery_date"`
	Items        []itemResponse `json:"items"`
	Advance      string         `json:"advance"`
	TotalAmount  string         `json:"total_amount"`
	Balance      string         `json:"balance"`
	Status       string         `json:"status"`
	Notes        *string        `json:"notes"`
	CreatedBy    uuid.UUID      `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type summaryResponse struct {
	ActiveTotal  string `json:"active_total"`
	Collected    string `json:"collected"`
	Balance      string `json:"balance"`
	RefundDue    bool   `json:"refund_due"`
	Refund       string `json:"refund"`
	PaymentState string `json:"payment_state"`
}

// orderDetailResponse is an order with its ledger, returned by every
// endpoint that changes money or items.
type orderDetailResponse struct {
	orderResponse
	Customer *customerResponse `json:"customer,omitempty"`
	Payments []paymentResponse `json:"payments"`
	Summary  summaryResponse   `json:"summary"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// --- Handlers ---

// Create handles POST /companies/{cid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}
	for i := range req.Items {
		item, err := normalizeItem(companyID, req.Items[i])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatItemError(i, err.Error())})
			return
		}
		req.Items[i] = item
	}

	customer, err := req.Customer.toWizard()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	billing := wizard.Billing{
		Notes:       strings.TrimSpace(req.Notes),
		AdvanceMode: req.AdvanceMode,
	}
	if billing.OrderedOn, err = parseOptionalDate(req.OrderedOn); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ordered_on"})
		return
	}
	if billing.DeliveryDate, err = parseOptionalDate(req.DeliveryDate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delivery_date"})
		return
	}
	if req.Advance != "" {
		if billing.Advance, err = decimal.NewFromString(req.Advance); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid advance"})
			return
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		CompanyID: companyID,
		CreatedBy: claims.UserID,
		Submission: wizard.Submission{
			Customer: customer,
			Billing:  billing,
			Items:    req.Items,
			Total:    ledger.ActiveTotal(req.Items),
		},
	})
	if err != nil {
		writeServiceError(w, "create order", err)
		return
	}

	resp := toOrderDetailResponse(result.Order, result.Payments, result.Summary)
	c := toCustomerResponse(result.Customer)
	resp.Customer = &c
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /companies/{cid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	limit, offset := parsePagination(r)

	// Build query params with optional filters
	params := database.ListOrdersParams{
		CompanyID: companyID,
		Limit:     int32(limit),
		Offset:    int32(offset),
	}

	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		status, err := enum.ParseOrderStatus(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		params.Status = pgtype.Text{String: status, Valid: true}
	}
	if s := q.Get("customer_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer_id"})
			return
		}
		params.CustomerID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := q.Get("from"); s != "" {
		t, err := dates.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from date, use YYYY-MM-DD"})
			return
		}
		params.From = pgtype.Date{Time: t, Valid: true}
	}
	if s := q.Get("to"); s != "" {
		t, err := dates.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to date, use YYYY-MM-DD"})
			return
		}
		params.To = pgtype.Date{Time: t, Valid: true}
	}
	if s := strings.TrimSpace(q.Get("bill_no")); s != "" {
		params.BillPrefix = pgtype.Text{String: s, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}

	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit, Offset: offset})
}

// Get handles GET /companies/{cid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: key.OrderID, CompanyID: key.CompanyID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toOrderDetailResponse(order, payments, ledger.Summarize(order, payments))

	customer, err := h.store.GetCustomer(r.Context(), database.GetCustomerParams{ID: order.CustomerID, CompanyID: key.CompanyID})
	switch {
	case err == nil:
		c := toCustomerResponse(customer)
		resp.Customer = &c
	case !errors.Is(err, pgx.ErrNoRows):
		log.Printf("ERROR: get order customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateDetails handles PATCH /companies/{cid}/orders/{id}. Only the fields
// present in the body change; an empty delivery_date clears it.
func (h *OrderHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	var req updateOrderDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: key.OrderID, CompanyID: key.CompanyID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for update: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	params := database.UpdateOrderDetailsParams{
		ID:           order.ID,
		CompanyID:    key.CompanyID,
		OrderedOn:    order.OrderedOn,
		DeliveryDate: order.DeliveryDate,
		Notes:        order.Notes,
	}
	if req.OrderedOn != nil {
		t, err := dates.Parse(*req.OrderedOn)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ordered_on"})
			return
		}
		params.OrderedOn = t
	}
	if req.DeliveryDate != nil {
		t, err := parseOptionalDate(*req.DeliveryDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delivery_date"})
			return
		}
		params.DeliveryDate = pgtype.Date{Time: t, Valid: !t.IsZero()}
	}
	if req.Notes != nil {
		params.Notes = optionalText(*req.Notes)
	}

	updated, err := h.store.UpdateOrderDetails(r.Context(), params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: update order details: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

// UpdateStatus handles PATCH /companies/{cid}/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	res, err := h.svc.UpdateStatus(r.Context(), key, req.Status)
	if err != nil {
		writeServiceError(w, "update order status", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(res.Order, res.Payments, res.Summary))
}

// Cancel handles POST /companies/{cid}/orders/{id}/cancel. Payments are kept,
// so the response shows any refund due.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	res, err := h.svc.CancelOrder(r.Context(), key)
	if err != nil {
		writeServiceError(w, "cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(res.Order, res.Payments, res.Summary))
}

// Delete handles DELETE /companies/{cid}/orders/{id}.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteOrder(r.Context(), key); err != nil {
		writeServiceError(w, "delete order", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func parseOrderKey(w http.ResponseWriter, r *http.Request) (service.OrderKey, bool) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return service.OrderKey{}, false
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return service.OrderKey{}, false
	}
	return service.OrderKey{CompanyID: companyID, OrderID: orderID}, true
}

// parsePagination reads limit (default 20, max 100) and offset.
func parsePagination(r *http.Request) (int, int) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

func parseOptionalDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return dates.Parse(s)
}

func (c customerInput) toWizard() (wizard.Customer, error) {
	out := wizard.Customer{
		Name:     strings.TrimSpace(c.Name),
		Mobile:   strings.TrimSpace(c.Mobile),
		Location: strings.TrimSpace(c.Location),
	}
	if c.ID != "" {
		id, err := uuid.Parse(c.ID)
		if err != nil {
			return out, errors.New("invalid customer id")
		}
		out.ID = id
	}
	return out, nil
}

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// isValidationError reports errors caused by the request content.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrOutfitTypeRequired) ||
		errors.Is(err, service.ErrNegativeAmount) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrAmountPrecision) ||
		errors.Is(err, service.ErrInvalidAdvance) ||
		errors.Is(err, service.ErrUseCancel) ||
		errors.Is(err, enum.ErrUnknownValue) ||
		errors.Is(err, wizard.ErrCustomerRequired) ||
		errors.Is(err, wizard.ErrInvalidMobile) ||
		errors.Is(err, wizard.ErrOutfitTypeRequired) ||
		errors.Is(err, wizard.ErrNoItems) ||
		errors.Is(err, wizard.ErrCartIndex) ||
		errors.Is(err, wizard.ErrFirstStep) ||
		errors.Is(err, wizard.ErrLastStep) ||
		errors.Is(err, wizard.ErrInvalidStep) ||
		errors.Is(err, wizard.ErrStepSkipped) ||
		errors.Is(err, wizard.ErrInvalidAdvance)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, service.ErrOrderNotFound) ||
		errors.Is(err, service.ErrCustomerNotFound) ||
		errors.Is(err, service.ErrPaymentNotFound) ||
		errors.Is(err, ledger.ErrItemIndex)
}

func isConflictError(err error) bool {
	return errors.Is(err, service.ErrOrderCancelled) ||
		errors.Is(err, service.ErrItemCancelled) ||
		errors.Is(err, ledger.ErrAlreadyCancelled) ||
		errors.Is(err, service.ErrLastItem) ||
		errors.Is(err, service.ErrInvalidTransition) ||
		errors.Is(err, service.ErrPaymentStateChanged) ||
		errors.Is(err, service.ErrAdvancePayment) ||
		errors.Is(err, service.ErrConcurrentUpdate)
}

// writeServiceError maps known service errors to HTTP status codes. Anything
// else is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case isNotFoundError(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case isConflictError(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toOrderResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		CompanyID:   o.CompanyID,
		CustomerID:  o.CustomerID,
		BillNo:      o.BillNo,
		OrderedOn:   dates.FormatStorage(o.OrderedOn),
		Items:       make([]itemResponse, len(o.Items)),
		Advance:     money(o.Advance),
		TotalAmount: money(o.TotalAmount),
		Balance:     money(o.Balance),
		Status:      o.Status,
		CreatedBy:   o.CreatedBy,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for i, item := range o.Items {
		resp.Items[i] = itemResponse{Index: i, OutfitItem: item, Value: money(ledger.ItemValue(item))}
	}
	if o.DeliveryDate.Valid {
		s := dates.FormatStorage(o.DeliveryDate.Time)
		resp.DeliveryDate = &s
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	return resp
}

func toSummaryResponse(s ledger.Summary) summaryResponse {
	return summaryResponse{
		ActiveTotal:  money(s.ActiveTotal),
		Collected:    money(s.Collected),
		Balance:      money(s.Balance),
		RefundDue:    s.RefundDue(),
		Refund:       money(s.Refund()),
		PaymentState: s.PaymentState(),
	}
}

func toOrderDetailResponse(o database.Order, payments []database.Payment, sum ledger.Summary) orderDetailResponse {
	resp := orderDetailResponse{
		orderResponse: toOrderResponse(o),
		Payments:      make([]paymentResponse, len(payments)),
		Summary:       toSummaryResponse(sum),
	}
	for i, p := range payments {
		resp.Payments[i] = toPaymentResponse(p)
	}
	return resp
}
