package enum

import (
	"errors"
	"fmt"
)

// ErrUnknownValue is wrapped by every Parse* function when the input is not
// one of the known enumeration values.
var ErrUnknownValue = errors.New("unknown enum value")

// ── Group A: Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusPending    = "Pending"
	OrderStatusInProgress = "In Progress"
	OrderStatusTrial      = "Trial"
	OrderStatusCompleted  = "Completed"
	OrderStatusOverdue    = "Overdue"
	OrderStatusCancelled  = "Cancelled"
	OrderStatusDue        = "Due"
	OrderStatusPartial    = "Partial"
	OrderStatusPaid       = "Paid"
)

var orderStatuses = []string{
	OrderStatusPending, OrderStatusInProgress, OrderStatusTrial,
	OrderStatusCompleted, OrderStatusOverdue, OrderStatusCancelled,
	OrderStatusDue, OrderStatusPartial, OrderStatusPaid,
}

// Item statuses are a subset of the order statuses.
const (
	ItemStatusPending    = OrderStatusPending
	ItemStatusInProgress = OrderStatusInProgress
	ItemStatusTrial      = OrderStatusTrial
	ItemStatusCompleted  = OrderStatusCompleted
	ItemStatusCancelled  = OrderStatusCancelled
)

var itemStatuses = []string{
	ItemStatusPending, ItemStatusInProgress, ItemStatusTrial,
	ItemStatusCompleted, ItemStatusCancelled,
}

// ── Group B: Payment ledger ──

const (
	PaymentModeCash = "Cash"
	PaymentModeUPI  = "UPI"
	PaymentModeGPay = "GPay"
	PaymentModeCard = "Card"
)

var paymentModes = []string{PaymentModeCash, PaymentModeUPI, PaymentModeGPay, PaymentModeCard}

// PaymentTypeAdvance tags the payment written when an order is created with an
// advance. Untagged payments are later top-ups.
const PaymentTypeAdvance = "Advance"

// ParseOrderStatus validates an order status read from a request or a row.
func ParseOrderStatus(s string) (string, error) {
	return parse("order status", s, orderStatuses)
}

// ParseItemStatus validates an outfit item status. Empty means Pending.
func ParseItemStatus(s string) (string, error) {
	if s == "" {
		return ItemStatusPending, nil
	}
	return parse("item status", s, itemStatuses)
}

// IsPaymentStatus reports whether an order status describes the balance
// (Due, Partial, Paid) rather than the tailoring work.
func IsPaymentStatus(s string) bool {
	return s == OrderStatusDue || s == OrderStatusPartial || s == OrderStatusPaid
}

// ParsePaymentMode validates a payment mode.
func ParsePaymentMode(s string) (string, error) {
	return parse("payment mode", s, paymentModes)
}

// ParsePaymentType validates the optional payment type tag.
func ParsePaymentType(s string) (string, error) {
	if s == "" || s == PaymentTypeAdvance {
		return s, nil
	}
	return "", fmt.Errorf("payment type %q: %w", s, ErrUnknownValue)
}

func parse(kind, s string, allowed []string) (string, error) {
	for _, v := range allowed {
		if v == s {
			return s, nil
		}
	}
	return "", fmt.Errorf("%s %q: %w", kind, s, ErrUnknownValue)
}
