package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/invoice"
	"github.com/stitchbook/api/internal/media"
	"github.com/stitchbook/api/internal/service"
)

// InvoiceStore defines the database methods needed to build a bill.
// Satisfied by *database.Queries; narrow interface for testability.
type InvoiceStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (database.Company, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetCustomer(ctx context.Context, arg database.GetCustomerParams) (database.Customer, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

// InvoiceHandler renders bills.
type InvoiceHandler struct {
	store InvoiceStore
	media media.Store
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(store InvoiceStore, mediaStore media.Store) *InvoiceHandler {
	return &InvoiceHandler{store: store, media: mediaStore}
}

// RegisterRoutes registers invoice endpoints.
// Expected to be mounted inside /companies/{cid}/orders/{id}/invoice.
func (h *InvoiceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Render)
	r.Get("/share", h.Share)
}

type shareResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Render handles GET .../invoice and returns the bill as HTML. With
// ?download=1 the browser saves it instead.
func (h *InvoiceHandler) Render(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	data, err := loadInvoice(r.Context(), h.store, h.media, key)
	if err != nil {
		writeServiceError(w, "load invoice", err)
		return
	}

	html, err := invoice.Render(data)
	if err != nil {
		log.Printf("ERROR: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", invoice.Filename(data.Order)))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(html)); err != nil {
		log.Printf("ERROR: write invoice: %v", err)
	}
}

// Share handles GET .../invoice/share and returns a WhatsApp link with the
// bill summary.
func (h *InvoiceHandler) Share(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	data, err := loadInvoice(r.Context(), h.store, h.media, key)
	if err != nil {
		writeServiceError(w, "load invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, shareResponse{URL: invoice.ShareURL(data), Filename: invoice.Filename(data.Order)})
}

// loadInvoice gathers everything a bill shows. A missing signature URL only
// drops the signature from the bill.
func loadInvoice(ctx context.Context, store InvoiceStore, mediaStore media.Store, key service.OrderKey) (invoice.Data, error) {
	order, err := store.GetOrder(ctx, database.GetOrderParams{ID: key.OrderID, CompanyID: key.CompanyID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invoice.Data{}, service.ErrOrderNotFound
		}
		return invoice.Data{}, fmt.Errorf("get order: %w", err)
	}

	company, err := store.GetCompany(ctx, key.CompanyID)
	if err != nil {
		return invoice.Data{}, fmt.Errorf("get company: %w", err)
	}

	customer, err := store.GetCustomer(ctx, database.GetCustomerParams{ID: order.CustomerID, CompanyID: key.CompanyID})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return invoice.Data{}, fmt.Errorf("get customer: %w", err)
		}
		log.Printf("WARN: bill %s: customer %s is inactive", order.BillNo, order.CustomerID)
	}

	payments, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return invoice.Data{}, fmt.Errorf("list payments: %w", err)
	}

	data := invoice.Data{Company: company, Customer: customer, Order: order, Payments: payments}
	if company.SignatureKey.Valid && mediaStore != nil {
		url, err := mediaStore.URL(ctx, company.SignatureKey.String)
		if err != nil {
			log.Printf("WARN: signature url for company %s: %v", company.ID, err)
		} else {
			data.SignatureURL = url
		}
	}
	return data, nil
}
