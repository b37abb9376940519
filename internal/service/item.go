package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/enum"
	"github.com/stitchbook/api/internal/ledger"
)

// ItemService edits the outfit lines of a saved order. Every change locks
// the order and recomputes its totals before committing.
type ItemService struct {
	pool     TxBeginner
	newStore NewStore
	events   Broadcaster
}

// NewItemService creates a new ItemService. events may be nil.
func NewItemService(pool TxBeginner, newStore NewStore, events Broadcaster) *ItemService {
	if events == nil {
		events = noopBroadcaster{}
	}
	return &ItemService{pool: pool, newStore: newStore, events: events}
}

func (s *ItemService) mutate(ctx context.Context, key OrderKey, fn func(st *OrderState) error) (*OrderUpdate, error) {
	res, err := mutateOrder(ctx, s.pool, s.newStore, key, func(ctx context.Context, _ Store, st *OrderState) error {
		if st.Status == enum.OrderStatusCancelled {
			return ErrOrderCancelled
		}
		return fn(st)
	})
	if err != nil {
		return nil, err
	}
	s.events.BroadcastToCompany(key.CompanyID, EventOrderUpdated, res.Order)
	return res, nil
}

func checkIndex(st *OrderState, idx int) error {
	if idx < 0 || idx >= len(st.Items) {
		return fmt.Errorf("item %d of %d: %w", idx, len(st.Items), ledger.ErrItemIndex)
	}
	return nil
}

// AddItem appends an outfit to the order.
func (s *ItemService) AddItem(ctx context.Context, key OrderKey, item database.OutfitItem) (*OrderUpdate, error) {
	item, err := validateItem(item)
	if err != nil {
		return nil, err
	}
	if item.Status == enum.ItemStatusCancelled {
		return nil, ErrUseCancel
	}
	return s.mutate(ctx, key, func(st *OrderState) error {
		st.Items = append(st.Items, item)
		return nil
	})
}

// UpdateItem replaces outfit idx. The item keeps its status unless the
// request carries a new one.
func (s *ItemService) UpdateItem(ctx context.Context, key OrderKey, idx int, item database.OutfitItem) (*OrderUpdate, error) {
	keepStatus := item.Status == ""
	item, err := validateItem(item)
	if err != nil {
		return nil, err
	}
	if item.Status == enum.ItemStatusCancelled {
		return nil, ErrUseCancel
	}
	return s.mutate(ctx, key, func(st *OrderState) error {
		if err := checkIndex(st, idx); err != nil {
			return err
		}
		if !ledger.IsActive(st.Items[idx]) {
			return ErrItemCancelled
		}
		if keepStatus {
			item.Status = st.Items[idx].Status
		}
		st.Items[idx] = item
		return nil
	})
}

// UpdateItemStatus moves one outfit through the work statuses.
func (s *ItemService) UpdateItemStatus(ctx context.Context, key OrderKey, idx int, status string) (*OrderUpdate, error) {
	next, err := enum.ParseItemStatus(status)
	if err != nil {
		return nil, err
	}
	if next == enum.ItemStatusCancelled {
		return nil, ErrUseCancel
	}
	return s.mutate(ctx, key, func(st *OrderState) error {
		if err := checkIndex(st, idx); err != nil {
			return err
		}
		if !ledger.IsActive(st.Items[idx]) {
			return ErrItemCancelled
		}
		st.Items[idx].Status = next
		return nil
	})
}

// PreviewCancel reports what cancelling outfit idx would do to the balance
// without changing anything.
func (s *ItemService) PreviewCancel(ctx context.Context, key OrderKey, idx int) (ledger.CancelOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.CancelOutcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := store.GetOrder(ctx, key.params())
	if err != nil {
		return ledger.CancelOutcome{}, orderLookupErr(err)
	}
	payments, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return ledger.CancelOutcome{}, fmt.Errorf("list payments: %w", err)
	}
	return ledger.CancelItem(order, idx, payments)
}

// CancelResult is a committed item cancellation.
type CancelResult struct {
	*OrderUpdate
	Outcome ledger.CancelOutcome
}

// CancelItem marks outfit idx cancelled. When it was the last active outfit
// and cancelOrder is set, the order is cancelled too; otherwise the order
// stays open with a zero total.
func (s *ItemService) CancelItem(ctx context.Context, key OrderKey, idx int, cancelOrder bool) (*CancelResult, error) {
	var outcome ledger.CancelOutcome
	res, err := s.mutate(ctx, key, func(st *OrderState) error {
		order := st.Order
		order.Items = st.Items
		out, err := ledger.CancelItem(order, idx, st.Payments)
		if err != nil {
			return err
		}
		st.Items = out.Items
		if out.LastActive && cancelOrder {
			st.Status = enum.OrderStatusCancelled
		}
		outcome = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CancelResult{OrderUpdate: res, Outcome: outcome}, nil
}

// DeleteItem removes outfit idx from the order entirely. Cancelling keeps the
// line on the bill; deleting is for lines entered by mistake.
func (s *ItemService) DeleteItem(ctx context.Context, key OrderKey, idx int) (*OrderUpdate, error) {
	return s.mutate(ctx, key, func(st *OrderState) error {
		if err := checkIndex(st, idx); err != nil {
			return err
		}
		if len(st.Items) == 1 {
			return ErrLastItem
		}
		st.Items = append(st.Items[:idx:idx], st.Items[idx+1:]...)
		return nil
	})
}

func orderLookupErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	return fmt.Errorf("get order: %w", err)
}
