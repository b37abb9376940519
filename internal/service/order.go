package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/enum"
	"github.com/stitchbook/api/internal/ledger"
	"github.com/stitchbook/api/internal/validate"
	"github.com/stitchbook/api/internal/wizard"
)

const maxBillNumberRetries = 3

// Constraints that can collide when two devices create orders at once.
const (
	billNoConstraint    = "orders_company_id_bill_no_key"
	displayIDConstraint = "customers_company_id_display_id_key"
)

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	CompanyID uuid.UUID
	CreatedBy uuid.UUID
	wizard.Submission
}

// CreateOrderResult is the created order with its customer and the advance
// payment, if one was recorded.
type CreateOrderResult struct {
	Order    database.Order
	Customer database.Customer
	Payments []database.Payment
	Summary  ledger.Summary
}

// OrderService handles order creation and order-level lifecycle changes.
type OrderService struct {
	pool     TxBeginner
	newStore NewStore
	events   Broadcaster
	now      func() time.Time
}

// NewOrderService creates a new OrderService. events may be nil.
func NewOrderService(pool TxBeginner, newStore NewStore, events Broadcaster) *OrderService {
	if events == nil {
		events = noopBroadcaster{}
	}
	return &OrderService{pool: pool, newStore: newStore, events: events, now: time.Now}
}

// SaverFor binds the service to a company and user so a wizard can save
// through it.
func (s *OrderService) SaverFor(companyID, userID uuid.UUID) wizard.OrderSaver {
	return wizard.OrderSaverFunc(func(ctx context.Context, sub wizard.Submission) (database.Order, error) {
		res, err := s.CreateOrder(ctx, CreateOrderRequest{CompanyID: companyID, CreatedBy: userID, Submission: sub})
		if err != nil {
			return database.Order{}, err
		}
		return res.Order, nil
	})
}

// CreateOrder allocates the next bill number and writes the order, a new
// customer if needed, and the advance payment atomically.
// Retries up to maxBillNumberRetries times when a concurrent order took the
// same bill number (or a concurrent customer the same display id).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	items := make([]database.OutfitItem, len(req.Items))
	for i, item := range req.Items {
		v, err := validateItem(item)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		items[i] = v
	}

	if req.Billing.Advance.IsNegative() {
		return nil, ErrInvalidAdvance
	}
	if !wholePaise(req.Billing.Advance) {
		return nil, ErrAmountPrecision
	}
	mode := req.Billing.AdvanceMode
	if mode == "" {
		mode = enum.PaymentModeCash
	}
	if _, err := enum.ParsePaymentMode(mode); err != nil {
		return nil, err
	}
	req.Billing.AdvanceMode = mode

	if req.Customer.ID == uuid.Nil {
		if req.Customer.Name == "" {
			return nil, wizard.ErrCustomerRequired
		}
		if !validate.Phone(req.Customer.Mobile) {
			return nil, wizard.ErrInvalidMobile
		}
	}

	if req.Billing.OrderedOn.IsZero() {
		req.Billing.OrderedOn = s.now()
	}

	var lastErr error
	for attempt := 0; attempt < maxBillNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req, items)
		if err == nil {
			s.events.BroadcastToCompany(req.CompanyID, EventOrderCreated, result.Order)
			return result, nil
		}
		if isUniqueConflict(err, billNoConstraint, displayIDConstraint) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// BillNumber formats the nth bill of a year.
func BillNumber(year, n int) string {
	return fmt.Sprintf("%d-%04d", year, n)
}

// CustomerDisplayID formats the nth customer of a company.
func CustomerDisplayID(n int32) string {
	return fmt.Sprintf("C-%04d", n)
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest, items []database.OutfitItem) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Customer: existing or new ---
	var customer database.Customer
	if req.Customer.ID != uuid.Nil {
		customer, err = store.GetCustomer(ctx, database.GetCustomerParams{ID: req.Customer.ID, CompanyID: req.CompanyID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrCustomerNotFound
			}
			return nil, fmt.Errorf("get customer: %w", err)
		}
	} else {
		n, err := store.NextCustomerNumber(ctx, req.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("next customer number: %w", err)
		}
		customer, err = store.CreateCustomer(ctx, database.CreateCustomerParams{
			CompanyID: req.CompanyID,
			DisplayID: CustomerDisplayID(n),
			Name:      req.Customer.Name,
			Mobile:    req.Customer.Mobile,
			Location:  pgtype.Text{String: req.Customer.Location, Valid: req.Customer.Location != ""},
		})
		if err != nil {
			return nil, fmt.Errorf("create customer: %w", err)
		}
	}

	// --- Bill number ---
	year := req.Billing.OrderedOn.Year()
	n, err := store.NextBillNumber(ctx, req.CompanyID, strconv.Itoa(year))
	if err != nil {
		return nil, fmt.Errorf("next bill number: %w", err)
	}

	// --- Totals ---
	// The advance is kept on the order and also recorded as a tagged payment;
	// the ledger counts it once.
	advance := req.Billing.Advance
	var payments []database.Payment
	if advance.IsPositive() {
		payments = append(payments, database.Payment{
			Amount: advance,
			Type:   pgtype.Text{String: enum.PaymentTypeAdvance, Valid: true},
		})
	}
	sum := ledger.Compute(items, payments, advance)

	deliveryDate := pgtype.Date{}
	if !req.Billing.DeliveryDate.IsZero() {
		deliveryDate = pgtype.Date{Time: req.Billing.DeliveryDate, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		CompanyID:    req.CompanyID,
		CustomerID:   customer.ID,
		BillNo:       BillNumber(year, int(n)),
		OrderedOn:    req.Billing.OrderedOn,
		DeliveryDate: deliveryDate,
		Items:        items,
		Advance:      advance,
		TotalAmount:  sum.ActiveTotal,
		Balance:      sum.Balance,
		Status:       enum.OrderStatusPending,
		Notes:        pgtype.Text{String: req.Billing.Notes, Valid: req.Billing.Notes != ""},
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// --- Advance payment ---
	var created []database.Payment
	if advance.IsPositive() {
		p, err := store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:    order.ID,
			CustomerID: customer.ID,
			CompanyID:  req.CompanyID,
			Amount:     advance,
			Mode:       req.Billing.AdvanceMode,
			PaidOn:     req.Billing.OrderedOn,
			Type:       pgtype.Text{String: enum.PaymentTypeAdvance, Valid: true},
			CreatedBy:  req.CreatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("create advance payment: %w", err)
		}
		created = append(created, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: order, Customer: customer, Payments: created, Summary: sum}, nil
}

// transitions lists the work statuses an order may move to by hand. Payment
// statuses (Due, Partial, Paid) are reachable from Completed and must match
// the balance. Cancelled is terminal and goes through CancelOrder.
var transitions = map[string][]string{
	enum.OrderStatusPending:    {enum.OrderStatusInProgress, enum.OrderStatusTrial, enum.OrderStatusCompleted},
	enum.OrderStatusInProgress: {enum.OrderStatusPending, enum.OrderStatusTrial, enum.OrderStatusCompleted},
	enum.OrderStatusTrial:      {enum.OrderStatusInProgress, enum.OrderStatusCompleted},
	enum.OrderStatusOverdue:    {enum.OrderStatusInProgress, enum.OrderStatusTrial, enum.OrderStatusCompleted},
	enum.OrderStatusCompleted:  {enum.OrderStatusTrial, enum.OrderStatusDue, enum.OrderStatusPartial, enum.OrderStatusPaid},
	enum.OrderStatusDue:        {enum.OrderStatusCompleted, enum.OrderStatusPartial, enum.OrderStatusPaid},
	enum.OrderStatusPartial:    {enum.OrderStatusCompleted, enum.OrderStatusDue, enum.OrderStatusPaid},
	enum.OrderStatusPaid:       {enum.OrderStatusCompleted, enum.OrderStatusDue, enum.OrderStatusPartial},
}

// ValidateTransition reports whether an order may move from current to next.
func ValidateTransition(current, next string) error {
	if !slices.Contains(transitions[current], next) {
		return fmt.Errorf("%s -> %s: %w", current, next, ErrInvalidTransition)
	}
	return nil
}

// UpdateStatus moves the order to a new work or payment status.
func (s *OrderService) UpdateStatus(ctx context.Context, key OrderKey, status string) (*OrderUpdate, error) {
	next, err := enum.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	if next == enum.OrderStatusCancelled {
		return s.CancelOrder(ctx, key)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, key.params())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if err := ValidateTransition(order.Status, next); err != nil {
		return nil, err
	}

	payments, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	sum := ledger.Summarize(order, payments)
	if enum.IsPaymentStatus(next) && sum.PaymentState() != next {
		return nil, fmt.Errorf("%s requested, balance says %s: %w", next, sum.PaymentState(), ErrPaymentStateChanged)
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:        order.ID,
		CompanyID: key.CompanyID,
		Status:    next,
		From:      order.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.events.BroadcastToCompany(key.CompanyID, EventOrderUpdated, updated)
	return &OrderUpdate{Order: updated, Payments: payments, Summary: sum}, nil
}

// CancelOrder cancels every active item and the order itself. Payments are
// kept, so the balance turns negative by what the customer has paid.
func (s *OrderService) CancelOrder(ctx context.Context, key OrderKey) (*OrderUpdate, error) {
	res, err := mutateOrder(ctx, s.pool, s.newStore, key, func(ctx context.Context, store Store, st *OrderState) error {
		if st.Status == enum.OrderStatusCancelled {
			return ErrOrderCancelled
		}
		for i := range st.Items {
			st.Items[i].Status = enum.ItemStatusCancelled
		}
		st.Status = enum.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.events.BroadcastToCompany(key.CompanyID, EventOrderUpdated, res.Order)
	return res, nil
}

// DeleteOrder removes the order and its payments for good.
func (s *OrderService) DeleteOrder(ctx context.Context, key OrderKey) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := s.newStore(tx).DeleteOrder(ctx, key.params()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("delete order: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.events.BroadcastToCompany(key.CompanyID, EventOrderDeleted, map[string]uuid.UUID{"id": key.OrderID})
	return nil
}
