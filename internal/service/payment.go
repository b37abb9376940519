package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/enum"
)

// PaymentInput is one payment as entered at the counter.
type PaymentInput struct {
	Amount decimal.Decimal
	Mode   string
	PaidOn time.Time
}

// PaymentService records payments against an order and keeps the order's
// balance and payment status current.
type PaymentService struct {
	pool     TxBeginner
	newStore NewStore
	events   Broadcaster
	now      func() time.Time
}

// NewPaymentService creates a new PaymentService. events may be nil.
func NewPaymentService(pool TxBeginner, newStore NewStore, events Broadcaster) *PaymentService {
	if events == nil {
		events = noopBroadcaster{}
	}
	return &PaymentService{pool: pool, newStore: newStore, events: events, now: time.Now}
}

func (s *PaymentService) normalize(in PaymentInput) (PaymentInput, error) {
	if !in.Amount.IsPositive() {
		return in, ErrInvalidAmount
	}
	if !wholePaise(in.Amount) {
		return in, ErrAmountPrecision
	}
	if in.Mode == "" {
		in.Mode = enum.PaymentModeCash
	}
	mode, err := enum.ParsePaymentMode(in.Mode)
	if err != nil {
		return in, err
	}
	in.Mode = mode
	if in.PaidOn.IsZero() {
		in.PaidOn = s.now()
	}
	return in, nil
}

func (s *PaymentService) broadcast(key OrderKey, res *OrderUpdate) {
	s.events.BroadcastToCompany(key.CompanyID, EventPaymentChanged, map[string]any{
		"order_id": key.OrderID,
		"balance":  res.Summary.Balance,
		"status":   res.Order.Status,
	})
}

// Add records a payment. Payments added after the order is created never
// carry the "Advance" tag.
func (s *PaymentService) Add(ctx context.Context, key OrderKey, in PaymentInput, createdBy uuid.UUID) (*OrderUpdate, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	res, err := mutateOrder(ctx, s.pool, s.newStore, key, func(ctx context.Context, store Store, st *OrderState) error {
		if st.Status == enum.OrderStatusCancelled {
			return ErrOrderCancelled
		}
		p, err := store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:    st.Order.ID,
			CustomerID: st.Order.CustomerID,
			CompanyID:  st.Order.CompanyID,
			Amount:     in.Amount,
			Mode:       in.Mode,
			PaidOn:     in.PaidOn,
			Type:       pgtype.Text{},
			CreatedBy:  createdBy,
		})
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		st.Payments = append(st.Payments, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(key, res)
	return res, nil
}

// Update changes a payment's amount, mode or date.
func (s *PaymentService) Update(ctx context.Context, key OrderKey, paymentID uuid.UUID, in PaymentInput) (*OrderUpdate, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	res, err := mutateOrder(ctx, s.pool, s.newStore, key, func(ctx context.Context, store Store, st *OrderState) error {
		i := paymentIndex(st.Payments, paymentID)
		if i < 0 {
			return ErrPaymentNotFound
		}
		p, err := store.UpdatePayment(ctx, database.UpdatePaymentParams{
			ID:      paymentID,
			OrderID: st.Order.ID,
			Amount:  in.Amount,
			Mode:    in.Mode,
			PaidOn:  in.PaidOn,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("update payment: %w", err)
		}
		st.Payments[i] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(key, res)
	return res, nil
}

// Delete removes a payment. The payment tagged "Advance" cannot be deleted:
// without it the order's advance field would be counted again.
func (s *PaymentService) Delete(ctx context.Context, key OrderKey, paymentID uuid.UUID) (*OrderUpdate, error) {
	res, err := mutateOrder(ctx, s.pool, s.newStore, key, func(ctx context.Context, store Store, st *OrderState) error {
		i := paymentIndex(st.Payments, paymentID)
		if i < 0 {
			return ErrPaymentNotFound
		}
		if t := st.Payments[i].Type; t.Valid && t.String == enum.PaymentTypeAdvance {
			return ErrAdvancePayment
		}
		if _, err := store.DeletePayment(ctx, database.GetPaymentParams{ID: paymentID, OrderID: st.Order.ID}); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("delete payment: %w", err)
		}
		st.Payments = append(st.Payments[:i:i], st.Payments[i+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(key, res)
	return res, nil
}

// List returns the order's payments, oldest first.
func (s *PaymentService) List(ctx context.Context, key OrderKey) ([]database.Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := store.GetOrder(ctx, key.params())
	if err != nil {
		return nil, orderLookupErr(err)
	}
	payments, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if payments == nil {
		payments = []database.Payment{}
	}
	return payments, nil
}

func paymentIndex(payments []database.Payment, id uuid.UUID) int {
	for i, p := range payments {
		if p.ID == id {
			return i
		}
	}
	return -1
}
