package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stitchbook/api/internal/dates"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/ledger"
	"github.com/stitchbook/api/internal/media"
	"github.com/stitchbook/api/internal/service"
)

var errForeignMedia = errors.New("media does not belong to this company")

// ItemServicer defines the service methods needed by item handlers.
// Satisfied by *service.ItemService; narrow interface for testability.
type ItemServicer interface {
	AddItem(ctx context.Context, key service.OrderKey, item database.OutfitItem) (*service.OrderUpdate, error)
	UpdateItem(ctx context.Context, key service.OrderKey, idx int, item database.OutfitItem) (*service.OrderUpdate, error)
	UpdateItemStatus(ctx context.Context, key service.OrderKey, idx int, status string) (*service.OrderUpdate, error)
	PreviewCancel(ctx context.Context, key service.OrderKey, idx int) (ledger.CancelOutcome, error)
	CancelItem(ctx context.Context, key service.OrderKey, idx int, cancelOrder bool) (*service.CancelResult, error)
	DeleteItem(ctx context.Context, key service.OrderKey, idx int) (*service.OrderUpdate, error)
}

// ItemHandler handles the outfit lines of a saved order.
type ItemHandler struct {
	svc ItemServicer
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(svc ItemServicer) *ItemHandler {
	return &ItemHandler{svc: svc}
}

// RegisterRoutes registers item endpoints.
// Expected to be mounted inside /companies/{cid}/orders/{id}/items.
func (h *ItemHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Add)
	r.Put("/{idx}", h.Update)
	r.Patch("/{idx}/status", h.UpdateStatus)
	r.Get("/{idx}/cancel-preview", h.PreviewCancel)
	r.Post("/{idx}/cancel", h.Cancel)
	r.Delete("/{idx}", h.Delete)
}

// --- Request / Response types ---

type cancelItemRequest struct {
	CancelOrder bool `json:"cancel_order"`
}

// cancelPreviewResponse tells the client what cancelling an item would do to
// the balance before anything is written.
type cancelPreviewResponse struct {
	Index      int             `json:"index"`
	Item       itemResponse    `json:"item"`
	Before     summaryResponse `json:"before"`
	After      summaryResponse `json:"after"`
	LastActive bool            `json:"last_active"`
	RefundDue  bool            `json:"refund_due"`
	Refund     string          `json:"refund"`
	Collect    string          `json:"collect"`
}

type cancelItemResponse struct {
	orderDetailResponse
	Outcome cancelPreviewResponse `json:"outcome"`
}

// --- Handlers ---

// Add handles POST /companies/{cid}/orders/{id}/items.
func (h *ItemHandler) Add(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}

	item, ok := decodeItem(w, r, key.CompanyID)
	if !ok {
		return
	}

	res, err := h.svc.AddItem(r.Context(), key, item)
	if err != nil {
		writeServiceError(w, "add item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderDetailResponse(res.Order, res.Payments, res.Summary))
}

// Update handles PUT /companies/{cid}/orders/{id}/items/{idx}.
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}
	idx, ok := parseItemIndex(w, r)
	if !ok {
		return
	}

	item, ok := decodeItem(w, r, key.CompanyID)
	if !ok {
		return
	}

	res, err := h.svc.UpdateItem(r.Context(), key, idx, item)
	if err != nil {
		writeServiceError(w, "update item", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(res.Order, res.Payments, res.Summary))
}

// UpdateStatus handles PATCH /companies/{cid}/orders/{id}/items/{idx}/status.
func (h *ItemHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}
	idx, ok := parseItemIndex(w, r)
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

	res, err := h.svc.UpdateItemStatus(r.Context(), key, idx, req.Status)
	if err != nil {
		writeServiceError(w, "update item status", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(res.Order, res.Payments, res.Summary))
}

// PreviewCancel handles GET /companies/{cid}/orders/{id}/items/{idx}/cancel-preview.
func (h *ItemHandler) PreviewCancel(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}
	idx, ok := parseItemIndex(w, r)
	if !ok {
		return
	}

	outcome, err := h.svc.PreviewCancel(r.Context(), key, idx)
	if err != nil {
		writeServiceError(w, "preview item cancel", err)
		return
	}

	writeJSON(w, http.StatusOK, toCancelPreviewResponse(outcome))
}

// Cancel handles POST /companies/{cid}/orders/{id}/items/{idx}/cancel.
// With cancel_order set, cancelling the last active item cancels the order.
func (h *ItemHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}
	idx, ok := parseItemIndex(w, r)
	if !ok {
		return
	}

	var req cancelItemRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	res, err := h.svc.CancelItem(r.Context(), key, idx, req.CancelOrder)
	if err != nil {
		writeServiceError(w, "cancel item", err)
		return
	}

	writeJSON(w, http.StatusOK, cancelItemResponse{
		orderDetailResponse: toOrderDetailResponse(res.Order, res.Payments, res.Summary),
		Outcome:             toCancelPreviewResponse(res.Outcome),
	})
}

// Delete handles DELETE /companies/{cid}/orders/{id}/items/{idx}.
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := parseOrderKey(w, r)
	if !ok {
		return
	}
	idx, ok := parseItemIndex(w, r)
	if !ok {
		return
	}

	res, err := h.svc.DeleteItem(r.Context(), key, idx)
	if err != nil {
		writeServiceError(w, "delete item", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(res.Order, res.Payments, res.Summary))
}

// --- Helpers ---

func parseItemIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil || idx < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item index"})
		return 0, false
	}
	return idx, true
}

func decodeItem(w http.ResponseWriter, r *http.Request, companyID uuid.UUID) (database.OutfitItem, bool) {
	var item database.OutfitItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return item, false
	}
	item, err := normalizeItem(companyID, item)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return item, false
	}
	return item, true
}

// normalizeItem trims the item, stores its delivery date as YYYY-MM-DD and
// checks that every media key was issued to the company.
func normalizeItem(companyID uuid.UUID, item database.OutfitItem) (database.OutfitItem, error) {
	item.OutfitType = strings.TrimSpace(item.OutfitType)
	item.Notes = strings.TrimSpace(item.Notes)
	if item.DeliveryDate != "" {
		t, err := dates.Parse(item.DeliveryDate)
		if err != nil {
			return item, errors.New("invalid delivery_date")
		}
		item.DeliveryDate = dates.FormatStorage(t)
	}
	for _, key := range item.Images {
		if !media.OwnedBy(key, companyID) {
			return item, errForeignMedia
		}
	}
	if item.AudioNote != "" && !media.OwnedBy(item.AudioNote, companyID) {
		return item, errForeignMedia
	}
	return item, nil
}

func toCancelPreviewResponse(c ledger.CancelOutcome) cancelPreviewResponse {
	return cancelPreviewResponse{
		Index:      c.Index,
		Item:       itemResponse{Index: c.Index, OutfitItem: c.Item, Value: money(ledger.ItemValue(c.Item))},
		Before:     toSummaryResponse(c.Before),
		After:      toSummaryResponse(c.After),
		LastActive: c.LastActive,
		RefundDue:  c.RefundDue(),
		Refund:     money(c.Refund()),
		Collect:    money(c.Collect()),
	}
}
