package database

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stitchbook/api/internal/enum"
)

// fakeRow copies values into the scan destinations in column order.
type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r[i]))
	}
	return nil
}

func orderRow(status, items string) fakeRow {
	now := time.Now()
	return fakeRow{
		uuid.New(), uuid.New(), uuid.New(), "2026-0001",
		time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), pgtype.Date{},
		[]byte(items),
		pgtype.Numeric{}, pgtype.Numeric{}, pgtype.Numeric{},
		status, pgtype.Text{}, uuid.New(), now, now,
	}
}

func paymentRow(mode string, typ pgtype.Text) fakeRow {
	return fakeRow{
		uuid.New(), uuid.New(), uuid.New(), uuid.New(),
		pgtype.Numeric{}, mode, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		typ, uuid.New(), time.Now(),
	}
}

func TestScanOrder_ItemStatuses(t *testing.T) {
	o, err := scanOrder(orderRow(enum.OrderStatusPending,
		`[{"outfit_type":"Blouse","amount":"500","status":"Cancelled"},{"outfit_type":"Salwar","amount":"800"}]`))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if o.Items[0].Status != enum.ItemStatusCancelled {
		t.Errorf("item 0: got %q", o.Items[0].Status)
	}
	if o.Items[1].Status != enum.ItemStatusPending {
		t.Errorf("missing status should read as Pending, got %q", o.Items[1].Status)
	}
}

func TestScanOrder_RejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name   string
		status string
		items  string
	}{
		{"lowercase item status", enum.OrderStatusPending, `[{"outfit_type":"Blouse","amount":"500","status":"cancelled"}]`},
		{"unknown item status", enum.OrderStatusPending, `[{"outfit_type":"Blouse","amount":"500","status":"Delivered"}]`},
		{"unknown order status", "Shipped", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scanOrder(orderRow(tt.status, tt.items))
			if !errors.Is(err, ErrInvalidRow) {
				t.Fatalf("expected ErrInvalidRow, got %v", err)
			}
			if errors.Is(err, enum.ErrUnknownValue) {
				t.Error("stored values must not surface as a request validation error")
			}
		})
	}
}

func TestScanPayment_Enums(t *testing.T) {
	if _, err := scanPayment(paymentRow(enum.PaymentModeUPI, pgtype.Text{String: enum.PaymentTypeAdvance, Valid: true})); err != nil {
		t.Fatalf("advance payment: %v", err)
	}
	if _, err := scanPayment(paymentRow(enum.PaymentModeCash, pgtype.Text{})); err != nil {
		t.Fatalf("untyped payment: %v", err)
	}
	if _, err := scanPayment(paymentRow("Cheque", pgtype.Text{})); !errors.Is(err, ErrInvalidRow) {
		t.Errorf("unknown mode: expected ErrInvalidRow, got %v", err)
	}
	if _, err := scanPayment(paymentRow(enum.PaymentModeCash, pgtype.Text{String: "Refund", Valid: true})); !errors.Is(err, ErrInvalidRow) {
		t.Errorf("unknown type: expected ErrInvalidRow, got %v", err)
	}
}
