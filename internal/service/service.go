package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/enum"
	"github.com/stitchbook/api/internal/ledger"
)

// Errors returned by the services. Handlers map these to 4xx responses.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrEmptyItems          = errors.New("at least one outfit is required")
	ErrOutfitTypeRequired  = errors.New("outfit_type is required")
	ErrNegativeAmount      = errors.New("amounts cannot be negative")
	ErrInvalidAmount       = errors.New("amount must be > 0")
	ErrAmountPrecision     = errors.New("amounts can have at most 2 decimal places")
	ErrInvalidAdvance      = errors.New("advance cannot be negative")
	ErrOrderCancelled      = errors.New("order is cancelled")
	ErrItemCancelled       = errors.New("item is cancelled")
	ErrUseCancel           = errors.New("use the cancel endpoint to cancel an item")
	ErrLastItem            = errors.New("an order must keep at least one outfit")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrPaymentStateChanged = errors.New("payment status does not match the order balance")
	ErrAdvancePayment      = errors.New("the advance payment cannot be deleted, edit its amount instead")
	ErrConcurrentUpdate    = errors.New("order was changed by someone else, reload and retry")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the DB methods the services need.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	GetCustomer(ctx context.Context, arg database.GetCustomerParams) (database.Customer, error)
	NextCustomerNumber(ctx context.Context, companyID uuid.UUID) (int32, error)
	CreateCustomer(ctx context.Context, arg database.CreateCustomerParams) (database.Customer, error)
	NextBillNumber(ctx context.Context, companyID uuid.UUID, yearPrefix string) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	UpdateOrderItems(ctx context.Context, arg database.UpdateOrderItemsParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	DeleteOrder(ctx context.Context, arg database.GetOrderParams) (uuid.UUID, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	GetPayment(ctx context.Context, arg database.GetPaymentParams) (database.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	UpdatePayment(ctx context.Context, arg database.UpdatePaymentParams) (database.Payment, error)
	DeletePayment(ctx context.Context, arg database.GetPaymentParams) (uuid.UUID, error)
}

// NewStore creates a Store from a DBTX (pool or tx).
type NewStore func(db database.DBTX) Store

// Broadcaster publishes order events to a company's realtime room.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToCompany(companyID uuid.UUID, event string, data any)
}

// Event names sent to realtime clients.
const (
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventOrderDeleted   = "order.deleted"
	EventPaymentChanged = "payment.changed"
)

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToCompany(uuid.UUID, string, any) {}

// OrderKey addresses one order inside a company.
type OrderKey struct {
	CompanyID uuid.UUID
	OrderID   uuid.UUID
}

func (k OrderKey) params() database.GetOrderParams {
	return database.GetOrderParams{ID: k.OrderID, CompanyID: k.CompanyID}
}

// OrderState is a locked order with its payments, as seen inside a mutation.
// Mutations change Items, Payments and Status; the ledger then recomputes the
// totals from them.
type OrderState struct {
	Order    database.Order
	Items    []database.OutfitItem
	Payments []database.Payment
	Status   string
}

// OrderUpdate is the persisted result of a mutation.
type OrderUpdate struct {
	Order    database.Order
	Payments []database.Payment
	Summary  ledger.Summary
}

// mutateOrder locks the order row, applies fn and writes back items, totals
// and status in one transaction. Nothing is written if fn fails.
func mutateOrder(ctx context.Context, pool TxBeginner, newStore NewStore, key OrderKey, fn func(ctx context.Context, store Store, st *OrderState) error) (*OrderUpdate, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, key.params())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	payments, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	items := make([]database.OutfitItem, len(order.Items))
	copy(items, order.Items)
	st := &OrderState{Order: order, Items: items, Payments: payments, Status: order.Status}

	if err := fn(ctx, store, st); err != nil {
		return nil, err
	}

	sum := ledger.Compute(st.Items, st.Payments, order.Advance)
	updated, err := store.UpdateOrderItems(ctx, database.UpdateOrderItemsParams{
		ID:          order.ID,
		Items:       st.Items,
		TotalAmount: sum.ActiveTotal,
		Balance:     sum.Balance,
		Status:      settleStatus(st.Status, sum),
	})
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderUpdate{Order: updated, Payments: st.Payments, Summary: sum}, nil
}

// settleStatus keeps a payment status (Due, Partial, Paid) in line with the
// balance. Work statuses are left alone.
func settleStatus(status string, sum ledger.Summary) string {
	if enum.IsPaymentStatus(status) {
		return sum.PaymentState()
	}
	return status
}

// validateItem checks one outfit line from a request and normalizes its
// status and quantity.
func validateItem(item database.OutfitItem) (database.OutfitItem, error) {
	if item.OutfitType == "" {
		return item, ErrOutfitTypeRequired
	}
	status, err := enum.ParseItemStatus(item.Status)
	if err != nil {
		return item, err
	}
	item.Status = status
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	for _, v := range []decimal.NullDecimal{item.Amount, item.TotalCost, item.Rate} {
		if !v.Valid {
			continue
		}
		if v.Decimal.IsNegative() {
			return item, ErrNegativeAmount
		}
		if !wholePaise(v.Decimal) {
			return item, ErrAmountPrecision
		}
	}
	return item, nil
}

// wholePaise reports whether d fits the NUMERIC(12,2) money columns without
// rounding.
func wholePaise(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// isUniqueConflict reports a unique violation (23505) on one of the named
// constraints.
func isUniqueConflict(err error, constraints ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	for _, c := range constraints {
		if pgErr.ConstraintName == c {
			return true
		}
	}
	return false
}
