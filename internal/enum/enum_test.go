package enum

import (
	"errors"
	"testing"
)

func TestParseOrderStatus(t *testing.T) {
	for _, s := range orderStatuses {
		got, err := ParseOrderStatus(s)
		if err != nil || got != s {
			t.Errorf("ParseOrderStatus(%q): got %q, %v", s, got, err)
		}
	}

	if _, err := ParseOrderStatus("pending"); !errors.Is(err, ErrUnknownValue) {
		t.Errorf("lowercase status: got %v, want ErrUnknownValue", err)
	}
}

func TestParseItemStatus(t *testing.T) {
	got, err := ParseItemStatus("")
	if err != nil || got != ItemStatusPending {
		t.Errorf("empty item status: got %q, %v", got, err)
	}

	// Order-only statuses are not valid on items
	if _, err := ParseItemStatus(OrderStatusPaid); !errors.Is(err, ErrUnknownValue) {
		t.Errorf("Paid on item: got %v, want ErrUnknownValue", err)
	}
}

func TestParsePaymentModeAndType(t *testing.T) {
	if _, err := ParsePaymentMode("GPay"); err != nil {
		t.Errorf("GPay: %v", err)
	}
	if _, err := ParsePaymentMode("Cheque"); err == nil {
		t.Error("Cheque: expected error")
	}
	if _, err := ParsePaymentType(""); err != nil {
		t.Errorf("empty type: %v", err)
	}
	if _, err := ParsePaymentType("Refund"); err == nil {
		t.Error("Refund type: expected error")
	}
}

func TestIsPaymentStatus(t *testing.T) {
	for _, s := range []string{OrderStatusDue, OrderStatusPartial, OrderStatusPaid} {
		if !IsPaymentStatus(s) {
			t.Errorf("IsPaymentStatus(%q) = false", s)
		}
	}
	for _, s := range []string{OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled, ""} {
		if IsPaymentStatus(s) {
			t.Errorf("IsPaymentStatus(%q) = true", s)
		}
	}
}
