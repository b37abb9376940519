package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/dates"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/invoice"
	"github.com/stitchbook/api/internal/ledger"
	"github.com/stitchbook/api/internal/media"
	"github.com/stitchbook/api/internal/middleware"
	"github.com/stitchbook/api/internal/service"
	"github.com/stitchbook/api/internal/wizard"
)

// SaverFactory binds order creation to a company and user.
// Satisfied by *service.OrderService.
type SaverFactory interface {
	SaverFor(companyID, userID uuid.UUID) wizard.OrderSaver
}

// WizardHandler drives the step-by-step order form. Each signed-in user has
// one wizard, kept in memory until it is saved or discarded.
type WizardHandler struct {
	sessions *wizard.Sessions
	savers   SaverFactory
	invoices InvoiceStore
	media    media.Store
}

// NewWizardHandler creates a new WizardHandler.
func NewWizardHandler(sessions *wizard.Sessions, savers SaverFactory, invoices InvoiceStore, mediaStore media.Store) *WizardHandler {
	return &WizardHandler{sessions: sessions, savers: savers, invoices: invoices, media: mediaStore}
}

// RegisterRoutes registers wizard endpoints.
// Expected to be mounted inside /companies/{cid}/wizard.
func (h *WizardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.State)
	r.Delete("/", h.Discard)
	r.Put("/customer", h.SetCustomer)
	r.Put("/draft", h.UpdateDraft)
	r.Put("/billing", h.SetBilling)
	r.Post("/next", h.Next)
	r.Post("/back", h.Back)
	r.Post("/goto", h.GoTo)
	r.Post("/cart", h.AddAnotherOutfit)
	r.Post("/cart/{i}/edit", h.EditCartItem)
	r.Delete("/cart/{i}", h.RemoveCartItem)
	r.Post("/save", h.Save)
}

// --- Request / Response types ---

type billingRequest struct {
	OrderedOn    string `json:"ordered_on"`
	DeliveryDate string `json:"delivery_date"`
	Notes        string `json:"notes"`
	Advance      string `json:"advance"`
	AdvanceMode  string `json:"advance_mode"`
}

type gotoRequest struct {
	Step string `json:"step"`
}

type wizardCustomerResponse struct {
	ID       *uuid.UUID `json:"id"`
	Name     string     `json:"name"`
	Mobile   string     `json:"mobile"`
	Location string     `json:"location"`
}

type wizardBillingResponse struct {
	OrderedOn    string `json:"ordered_on"`
	DeliveryDate string `json:"delivery_date"`
	Notes        string `json:"notes"`
	Advance      string `json:"advance"`
	AdvanceMode  string `json:"advance_mode"`
}

type wizardResponse struct {
	Step     string                 `json:"step"`
	Customer wizardCustomerResponse `json:"customer"`
	Billing  wizardBillingResponse  `json:"billing"`
	Draft    database.OutfitItem    `json:"draft"`
	Cart     []itemResponse         `json:"cart"`
	Total    string                 `json:"total"`
}

type wizardSaveResponse struct {
	Order   orderResponse `json:"order"`
	Message string        `json:"message"`
	Invoice string        `json:"invoice,omitempty"`
}

func toWizardResponse(wz *wizard.Wizard) wizardResponse {
	c := wz.Customer()
	b := wz.Billing()
	resp := wizardResponse{
		Step: wz.Step().String(),
		Customer: wizardCustomerResponse{
			Name:     c.Name,
			Mobile:   c.Mobile,
			Location: c.Location,
		},
		Billing: wizardBillingResponse{
			OrderedOn:    dates.FormatStorage(b.OrderedOn),
			DeliveryDate: dates.FormatStorage(b.DeliveryDate),
			Notes:        b.Notes,
			Advance:      money(b.Advance),
			AdvanceMode:  b.AdvanceMode,
		},
		Draft: wz.Draft(),
		Total: money(wz.Total()),
	}
	if c.ID != uuid.Nil {
		resp.Customer.ID = &c.ID
	}
	cart := wz.Cart()
	resp.Cart = make([]itemResponse, len(cart))
	for i, item := range cart {
		resp.Cart[i] = itemResponse{Index: i, OutfitItem: item, Value: money(ledger.ItemValue(item))}
	}
	return resp
}

// --- Handlers ---

// do runs fn on the caller's wizard and responds with the resulting state.
func (h *WizardHandler) do(w http.ResponseWriter, r *http.Request, fn func(wz *wizard.Wizard) error) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var resp wizardResponse
	err := h.sessions.Do(claims.UserID, func(wz *wizard.Wizard) error {
		if err := fn(wz); err != nil {
			return err
		}
		resp = toWizardResponse(wz)
		return nil
	})
	if err != nil {
		writeServiceError(w, "wizard", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// State handles GET /companies/{cid}/wizard.
func (h *WizardHandler) State(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(*wizard.Wizard) error { return nil })
}

// Discard handles DELETE /companies/{cid}/wizard.
func (h *WizardHandler) Discard(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	h.sessions.Discard(claims.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// SetCustomer handles PUT /companies/{cid}/wizard/customer.
func (h *WizardHandler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	customer, err := req.toWizard()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.do(w, r, func(wz *wizard.Wizard) error {
		wz.SetCustomer(customer)
		return nil
	})
}

// UpdateDraft handles PUT /companies/{cid}/wizard/draft.
func (h *WizardHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	item, ok := decodeItem(w, r, companyID)
	if !ok {
		return
	}

	h.do(w, r, func(wz *wizard.Wizard) error {
		return wz.UpdateDraft(item)
	})
}

// SetBilling handles PUT /companies/{cid}/wizard/billing.
func (h *WizardHandler) SetBilling(w http.ResponseWriter, r *http.Request) {
	var req billingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	billing := wizard.Billing{
		Notes:       strings.TrimSpace(req.Notes),
		AdvanceMode: req.AdvanceMode,
	}
	var err error
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

	h.do(w, r, func(wz *wizard.Wizard) error {
		return wz.SetBilling(billing)
	})
}

// Next handles POST /companies/{cid}/wizard/next.
func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(wz *wizard.Wizard) error { return wz.Next() })
}

// Back handles POST /companies/{cid}/wizard/back.
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(wz *wizard.Wizard) error { return wz.Back() })
}

// GoTo handles POST /companies/{cid}/wizard/goto.
func (h *WizardHandler) GoTo(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	step, err := wizard.ParseStep(req.Step)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.do(w, r, func(wz *wizard.Wizard) error { return wz.GoTo(step) })
}

// AddAnotherOutfit handles POST /companies/{cid}/wizard/cart.
func (h *WizardHandler) AddAnotherOutfit(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, func(wz *wizard.Wizard) error { return wz.AddAnotherOutfit() })
}

// EditCartItem handles POST /companies/{cid}/wizard/cart/{i}/edit.
func (h *WizardHandler) EditCartItem(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "i"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cart index"})
		return
	}
	h.do(w, r, func(wz *wizard.Wizard) error { return wz.EditCartItem(i) })
}

// RemoveCartItem handles DELETE /companies/{cid}/wizard/cart/{i}.
func (h *WizardHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "i"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cart index"})
		return
	}
	h.do(w, r, func(wz *wizard.Wizard) error { return wz.RemoveCartItem(i) })
}

// Save handles POST /companies/{cid}/wizard/save. The order is created and
// the wizard reset. A bill that fails to render afterwards does not undo the
// save; the message says so instead.
func (h *WizardHandler) Save(w http.ResponseWriter, r *http.Request) {
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

	var order database.Order
	err = h.sessions.Do(claims.UserID, func(wz *wizard.Wizard) error {
		var err error
		order, err = wz.Save(r.Context(), h.savers.SaverFor(companyID, claims.UserID))
		return err
	})
	if err != nil {
		writeServiceError(w, "save wizard order", err)
		return
	}

	resp := wizardSaveResponse{Order: toOrderResponse(order), Message: "Order " + order.BillNo + " saved"}

	data, err := loadInvoice(r.Context(), h.invoices, h.media, service.OrderKey{CompanyID: companyID, OrderID: order.ID})
	if err == nil {
		resp.Invoice, err = invoice.Render(data)
	}
	if err != nil {
		log.Printf("WARN: bill for saved order %s: %v", order.BillNo, err)
		resp.Message = "Order " + order.BillNo + " saved, but the bill could not be generated"
		resp.Invoice = ""
	}

	writeJSON(w, http.StatusCreated, resp)
}
