// Package ledger reconciles an order's outfit items against its payments.
//
// Every function is pure: callers load the order and its payments, ask the
// ledger for the new figures, and persist them. Nothing here mutates its
// arguments.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/enum"
)

var (
	ErrItemIndex        = errors.New("item index out of range")
	ErrAlreadyCancelled = errors.New("item is already cancelled")
)

// ItemValue is the billable value of one outfit line: amount, else
// total_cost, else rate × quantity. A missing or zero quantity counts as one.
func ItemValue(item database.OutfitItem) decimal.Decimal {
	switch {
	case item.Amount.Valid:
		return item.Amount.Decimal
	case item.TotalCost.Valid:
		return item.TotalCost.Decimal
	case item.Rate.Valid:
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		return item.Rate.Decimal.Mul(decimal.NewFromInt32(qty))
	}
	return decimal.Zero
}

// IsActive reports whether the item still counts towards the bill.
func IsActive(item database.OutfitItem) bool {
	return item.Status != enum.ItemStatusCancelled
}

// ActiveTotal sums ItemValue over items that are not cancelled.
func ActiveTotal(items []database.OutfitItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if IsActive(item) {
			total = total.Add(ItemValue(item))
		}
	}
	return total
}

// HasAdvancePayment reports whether any payment carries the "Advance" tag.
func HasAdvancePayment(payments []database.Payment) bool {
	for _, p := range payments {
		if p.Type.Valid && p.Type.String == enum.PaymentTypeAdvance {
			return true
		}
	}
	return false
}

// TotalCollected sums the payments. The order's legacy advance field is added
// only when no payment is tagged "Advance": orders created before the payment
// ledger existed kept their advance on the order, newer ones record it as a
// tagged payment and also copy it to the field.
//
// The rule assumes at most one tagged payment and that the legacy field is not
// edited once a tagged payment exists. Both hold for data this service writes;
// imported data may break them.
func TotalCollected(payments []database.Payment, advance decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	if !HasAdvancePayment(payments) {
		total = total.Add(advance)
	}
	return total
}

// Summary is the authoritative financial position of one order.
type Summary struct {
	ActiveTotal decimal.Decimal
	Collected   decimal.Decimal
	Balance     decimal.Decimal
}

// RefundDue reports a negative balance: the boutique owes the customer.
func (s Summary) RefundDue() bool {
	return s.Balance.IsNegative()
}

// Refund is the amount owed back to the customer, zero unless RefundDue.
func (s Summary) Refund() decimal.Decimal {
	if !s.RefundDue() {
		return decimal.Zero
	}
	return s.Balance.Neg()
}

// PaymentState classifies the summary as Paid, Partial or Due.
func (s Summary) PaymentState() string {
	switch {
	case s.ActiveTotal.IsPositive() && !s.Balance.IsPositive():
		return enum.OrderStatusPaid
	case s.Collected.IsPositive():
		return enum.OrderStatusPartial
	}
	return enum.OrderStatusDue
}

// Compute builds a Summary from items, payments and the legacy advance field.
func Compute(items []database.OutfitItem, payments []database.Payment, advance decimal.Decimal) Summary {
	total := ActiveTotal(items)
	collected := TotalCollected(payments, advance)
	return Summary{
		ActiveTotal: total,
		Collected:   collected,
		Balance:     total.Sub(collected),
	}
}

// Summarize is Compute over a stored order.
func Summarize(order database.Order, payments []database.Payment) Summary {
	return Compute(order.Items, payments, order.Advance)
}

// CancelOutcome describes what cancelling one item would do. It is shown to
// the user before the cancellation is confirmed.
type CancelOutcome struct {
	Index  int
	Item   database.OutfitItem
	Before Summary
	After  Summary
	// Items is the order's item list with the target marked cancelled.
	Items []database.OutfitItem
	// LastActive is true when no active item remains after the cancel. The
	// caller decides whether the whole order becomes Cancelled.
	LastActive bool
}

// RefundDue reports that the customer has paid more than the new total.
func (c CancelOutcome) RefundDue() bool { return c.After.RefundDue() }

// Refund is the amount to return when RefundDue.
func (c CancelOutcome) Refund() decimal.Decimal { return c.After.Refund() }

// Collect is the amount still to collect when the balance stays positive.
func (c CancelOutcome) Collect() decimal.Decimal {
	if c.After.Balance.IsPositive() {
		return c.After.Balance
	}
	return decimal.Zero
}

// CancelItem marks item idx cancelled on a copy of the order's items and
// reports the before and after figures. Other items are untouched.
func CancelItem(order database.Order, idx int, payments []database.Payment) (CancelOutcome, error) {
	if idx < 0 || idx >= len(order.Items) {
		return CancelOutcome{}, fmt.Errorf("cancel item %d of %d: %w", idx, len(order.Items), ErrItemIndex)
	}
	if !IsActive(order.Items[idx]) {
		return CancelOutcome{}, fmt.Errorf("cancel item %d: %w", idx, ErrAlreadyCancelled)
	}

	items := make([]database.OutfitItem, len(order.Items))
	copy(items, order.Items)
	items[idx].Status = enum.ItemStatusCancelled

	lastActive := true
	for _, item := range items {
		if IsActive(item) {
			lastActive = false
			break
		}
	}

	return CancelOutcome{
		Index:      idx,
		Item:       order.Items[idx],
		Before:     Summarize(order, payments),
		After:      Compute(items, payments, order.Advance),
		Items:      items,
		LastActive: lastActive,
	}, nil
}
