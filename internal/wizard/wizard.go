// Package wizard holds the state of the four-step order creation flow: basic
// info, measurements, media, billing. One outfit is edited at a time in the
// draft slot; finished outfits wait in the cart until the order is saved.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/dates"
	"github.com/stitchbook/api/internal/enum"
	"github.com/stitchbook/api/internal/ledger"
	"github.com/stitchbook/api/internal/validate"
)

// Step is a wizard page.
type Step int

const (
	StepBasicInfo Step = iota + 1
	StepMeasurements
	StepMedia
	StepBilling
)

func (s Step) String() string {
	switch s {
	case StepBasicInfo:
		return "basic_info"
	case StepMeasurements:
		return "measurements"
	case StepMedia:
		return "media"
	case StepBilling:
		return "billing"
	default:
		return "unknown"
	}
}

// ParseStep accepts the String form of a step.
func ParseStep(s string) (Step, error) {
	for st := StepBasicInfo; st <= StepBilling; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("step %q: %w", s, ErrInvalidStep)
}

var (
	ErrCustomerRequired   = errors.New("customer name and mobile are required")
	ErrInvalidMobile      = errors.New("customer mobile must be 10 digits")
	ErrOutfitTypeRequired = errors.New("select an outfit type first")
	ErrNoItems            = errors.New("add at least one outfit")
	ErrCartIndex          = errors.New("cart item not found")
	ErrFirstStep          = errors.New("already at the first step")
	ErrLastStep           = errors.New("already at the last step")
	ErrInvalidStep        = errors.New("invalid step")
	ErrStepSkipped        = errors.New("steps must be completed in order")
	ErrInvalidAdvance     = errors.New("advance cannot be negative")
)

// Customer identifies who the order is for. ID is uuid.Nil for a customer the
// saver should create.
type Customer struct {
	ID       uuid.UUID
	Name     string
	Mobile   string
	Location string
}

// Billing is the order-level data collected on the last step.
type Billing struct {
	OrderedOn    time.Time
	DeliveryDate time.Time
	Notes        string
	Advance      decimal.Decimal
	AdvanceMode  string
}

// Submission is what Save hands to the OrderSaver.
type Submission struct {
	Customer Customer
	Billing  Billing
	Items    []database.OutfitItem
	Total    decimal.Decimal
}

// OrderSaver persists a submission: the order and, when Billing.Advance is
// positive, the matching "Advance" payment.
type OrderSaver interface {
	SaveOrder(ctx context.Context, sub Submission) (database.Order, error)
}

// OrderSaverFunc adapts a function to OrderSaver.
type OrderSaverFunc func(ctx context.Context, sub Submission) (database.Order, error)

func (f OrderSaverFunc) SaveOrder(ctx context.Context, sub Submission) (database.Order, error) {
	return f(ctx, sub)
}

// Wizard is single-user, single-threaded state. Sessions serializes access
// when it is shared across requests.
type Wizard struct {
	step     Step
	customer Customer
	billing  Billing
	draft    database.OutfitItem
	cart     []database.OutfitItem
}

// New returns a wizard at the first step with today's order date.
func New() *Wizard {
	w := &Wizard{}
	w.Reset()
	return w
}

// Reset discards everything and returns to the first step.
func (w *Wizard) Reset() {
	*w = Wizard{
		step:    StepBasicInfo,
		billing: Billing{OrderedOn: dates.Today(), AdvanceMode: enum.PaymentModeCash},
		draft:   blankItem(),
	}
}

func blankItem() database.OutfitItem {
	return database.OutfitItem{Quantity: 1, Status: enum.ItemStatusPending}
}

// IsBlank reports whether an outfit holds nothing worth keeping: no type, no
// cost, no measurements, no media and no notes.
func IsBlank(item database.OutfitItem) bool {
	return item.OutfitType == "" &&
		ledger.ItemValue(item).IsZero() &&
		len(item.Measurements) == 0 &&
		len(item.Images) == 0 &&
		item.AudioNote == "" &&
		strings.TrimSpace(item.Notes) == ""
}

func (w *Wizard) Step() Step { return w.step }

func (w *Wizard) Customer() Customer { return w.customer }

func (w *Wizard) Billing() Billing { return w.billing }

func (w *Wizard) Draft() database.OutfitItem { return w.draft }

// Cart returns a copy of the committed outfits.
func (w *Wizard) Cart() []database.OutfitItem {
	out := make([]database.OutfitItem, len(w.cart))
	copy(out, w.cart)
	return out
}

// Next moves forward one step.
func (w *Wizard) Next() error {
	if w.step == StepBilling {
		return ErrLastStep
	}
	w.step++
	return nil
}

// Back moves back one step.
func (w *Wizard) Back() error {
	if w.step == StepBasicInfo {
		return ErrFirstStep
	}
	w.step--
	return nil
}

// GoTo jumps to any earlier step, the current one, or the next one.
func (w *Wizard) GoTo(s Step) error {
	if s < StepBasicInfo || s > StepBilling {
		return ErrInvalidStep
	}
	if s > w.step+1 {
		return ErrStepSkipped
	}
	w.step = s
	return nil
}

// SetCustomer records the customer. Validation happens on Save.
func (w *Wizard) SetCustomer(c Customer) {
	c.Name = strings.TrimSpace(c.Name)
	c.Mobile = validate.NormalizePhone(c.Mobile)
	w.customer = c
}

// SetBilling records order-level fields. A zero OrderedOn keeps the current
// one.
func (w *Wizard) SetBilling(b Billing) error {
	if b.Advance.IsNegative() {
		return ErrInvalidAdvance
	}
	if b.AdvanceMode == "" {
		b.AdvanceMode = enum.PaymentModeCash
	}
	if _, err := enum.ParsePaymentMode(b.AdvanceMode); err != nil {
		return err
	}
	if b.OrderedOn.IsZero() {
		b.OrderedOn = w.billing.OrderedOn
	}
	w.billing = b
	return nil
}

// UpdateDraft replaces the outfit in the draft slot.
func (w *Wizard) UpdateDraft(item database.OutfitItem) error {
	status, err := enum.ParseItemStatus(item.Status)
	if err != nil {
		return err
	}
	item.Status = status
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	w.draft = item
	return nil
}

// AddAnotherOutfit commits the draft to the cart, starts a blank draft and
// returns to the first step.
func (w *Wizard) AddAnotherOutfit() error {
	if w.draft.OutfitType == "" {
		return ErrOutfitTypeRequired
	}
	w.cart = append(w.cart, w.draft)
	w.draft = blankItem()
	w.step = StepBasicInfo
	return nil
}

// EditCartItem moves cart item i into the draft slot. A non-blank draft is
// first pushed to the end of the cart so it is not lost, which means cart
// positions shift across edits.
func (w *Wizard) EditCartItem(i int) error {
	if i < 0 || i >= len(w.cart) {
		return ErrCartIndex
	}
	target := w.cart[i]
	w.cart = append(w.cart[:i:i], w.cart[i+1:]...)
	if !IsBlank(w.draft) {
		w.cart = append(w.cart, w.draft)
	}
	w.draft = target
	w.step = StepBasicInfo
	return nil
}

// RemoveCartItem drops cart item i.
func (w *Wizard) RemoveCartItem(i int) error {
	if i < 0 || i >= len(w.cart) {
		return ErrCartIndex
	}
	w.cart = append(w.cart[:i:i], w.cart[i+1:]...)
	return nil
}

// Items is the cart followed by the draft, if the draft is not blank.
func (w *Wizard) Items() []database.OutfitItem {
	items := w.Cart()
	if !IsBlank(w.draft) {
		items = append(items, w.draft)
	}
	return items
}

// Total is the order total across Items.
func (w *Wizard) Total() decimal.Decimal {
	return ledger.ActiveTotal(w.Items())
}

// Submission validates the wizard and builds what Save would send.
func (w *Wizard) Submission() (Submission, error) {
	if w.customer.Name == "" || w.customer.Mobile == "" {
		return Submission{}, ErrCustomerRequired
	}
	if !validate.Phone(w.customer.Mobile) {
		return Submission{}, ErrInvalidMobile
	}

	items := w.Items()
	if len(items) == 0 {
		return Submission{}, ErrNoItems
	}
	for i, item := range items {
		if item.OutfitType == "" {
			return Submission{}, fmt.Errorf("outfit %d: %w", i+1, ErrOutfitTypeRequired)
		}
	}

	return Submission{
		Customer: w.customer,
		Billing:  w.billing,
		Items:    items,
		Total:    ledger.ActiveTotal(items),
	}, nil
}

// Save appends the draft, persists the order through saver and resets the
// wizard. On any error the wizard is left exactly as it was.
func (w *Wizard) Save(ctx context.Context, saver OrderSaver) (database.Order, error) {
	sub, err := w.Submission()
	if err != nil {
		return database.Order{}, err
	}

	order, err := saver.SaveOrder(ctx, sub)
	if err != nil {
		return database.Order{}, err
	}

	w.Reset()
	return order, nil
}
