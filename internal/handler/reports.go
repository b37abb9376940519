package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/dates"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/ledger"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	GetCollectionsByMode(ctx context.Context, arg database.DateRangeParams) ([]database.GetCollectionsByModeRow, error)
	GetDailyCollections(ctx context.Context, arg database.DateRangeParams) ([]database.GetDailyCollectionsRow, error)
	GetOrderSummary(ctx context.Context, arg database.DateRangeParams) (database.GetOrderSummaryRow, error)
	ListOrdersWithDues(ctx context.Context, companyID uuid.UUID, limit int32) ([]database.Order, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

// ReportsHandler handles report endpoints.
type ReportsHandler struct {
	store ReportsStore
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(store ReportsStore) *ReportsHandler {
	return &ReportsHandler{store: store}
}

// RegisterRoutes registers company-scoped report endpoints.
// Expected to be mounted inside /companies/{cid}/reports.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/summary", h.Summary)
	r.Get("/daily-collections", h.DailyCollections)
	r.Get("/dues", h.Dues)
}

// --- Response types ---

type modeCollectionResponse struct {
	Mode         string `json:"mode"`
	PaymentCount int64  `json:"payment_count"`
	Total        string `json:"total"`
}

type summaryReportResponse struct {
	StartDate   string                   `json:"start_date"`
	EndDate     string                   `json:"end_date"`
	OrderCount  int64                    `json:"order_count"`
	Billed      string                   `json:"billed"`
	Outstanding string                   `json:"outstanding"`
	Collected   string                   `json:"collected"`
	ByMode      []modeCollectionResponse `json:"by_mode"`
}

type dailyCollectionResponse struct {
	Date         string `json:"date"`
	PaymentCount int64  `json:"payment_count"`
	Total        string `json:"total"`
}

type dueResponse struct {
	OrderID      uuid.UUID `json:"order_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	BillNo       string    `json:"bill_no"`
	OrderedOn    string    `json:"ordered_on"`
	DeliveryDate *string   `json:"delivery_date"`
	Status       string    `json:"status"`
	Total        string    `json:"total"`
	Balance      string    `json:"balance"`
}

// --- Handlers ---

// Summary returns billed, collected and outstanding totals for a date range,
// with collections split by payment mode. Orders count by ordered_on and
// payments by paid_on.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	params, err := parseDateRange(r, companyID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	orders, err := h.store.GetOrderSummary(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: get order summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	modes, err := h.store.GetCollectionsByMode(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: get collections by mode: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	collected := decimal.Zero
	byMode := make([]modeCollectionResponse, len(modes))
	for i, m := range modes {
		collected = collected.Add(m.Total)
		byMode[i] = modeCollectionResponse{Mode: m.Mode, PaymentCount: m.PaymentCount, Total: money(m.Total)}
	}

	writeJSON(w, http.StatusOK, summaryReportResponse{
		StartDate:   dates.FormatStorage(params.StartDate),
		EndDate:     dates.FormatStorage(params.EndDate),
		OrderCount:  orders.OrderCount,
		Billed:      money(orders.Billed),
		Outstanding: money(orders.Outstanding),
		Collected:   money(collected),
		ByMode:      byMode,
	})
}

// DailyCollections returns money received per day.
func (h *ReportsHandler) DailyCollections(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	params, err := parseDateRange(r, companyID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := h.store.GetDailyCollections(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: get daily collections: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]dailyCollectionResponse, len(rows))
	for i, row := range rows {
		resp[i] = dailyCollectionResponse{
			Date:         dates.FormatStorage(row.PaidOn),
			PaymentCount: row.PaymentCount,
			Total:        money(row.Total),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Dues lists open orders that still owe money, soonest delivery first. The
// stored balance only preselects candidates; each balance is recomputed from
// the items and payments.
func (h *ReportsHandler) Dues(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	orders, err := h.store.ListOrdersWithDues(r.Context(), companyID, int32(limit))
	if err != nil {
		log.Printf("ERROR: list orders with dues: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]dueResponse, 0, len(orders))
	for _, o := range orders {
		payments, err := h.store.ListPaymentsByOrder(r.Context(), o.ID)
		if err != nil {
			log.Printf("ERROR: list payments for dues: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		sum := ledger.Summarize(o, payments)
		if !sum.Balance.IsPositive() {
			continue
		}
		due := dueResponse{
			OrderID:    o.ID,
			CustomerID: o.CustomerID,
			BillNo:     o.BillNo,
			OrderedOn:  dates.FormatStorage(o.OrderedOn),
			Status:     o.Status,
			Total:      money(sum.ActiveTotal),
			Balance:    money(sum.Balance),
		}
		if o.DeliveryDate.Valid {
			s := dates.FormatStorage(o.DeliveryDate.Time)
			due.DeliveryDate = &s
		}
		resp = append(resp, due)
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// parseDateRange reads start_date and end_date as inclusive calendar dates in
// either accepted format. Defaults to the last 30 days ending today.
func parseDateRange(r *http.Request, companyID uuid.UUID) (database.DateRangeParams, error) {
	end := dates.Today()
	start := end.AddDate(0, 0, -30)

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := dates.Parse(s)
		if err != nil {
			return database.DateRangeParams{}, errors.New("invalid start_date")
		}
		start = t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := dates.Parse(s)
		if err != nil {
			return database.DateRangeParams{}, errors.New("invalid end_date")
		}
		end = t
	}

	if start.After(end) {
		return database.DateRangeParams{}, errors.New("start_date must not be after end_date")
	}
	if end.Sub(start) > 366*24*time.Hour {
		return database.DateRangeParams{}, errors.New("date range cannot exceed one year")
	}

	return database.DateRangeParams{CompanyID: companyID, StartDate: start, EndDate: end}, nil
}
