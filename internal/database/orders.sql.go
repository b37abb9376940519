package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/enum"
)

const orderColumns = `id, company_id, customer_id, bill_no, ordered_on, delivery_date, items, advance, total_amount, balance, status, notes, created_by, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var (
		o                       Order
		items                   []byte
		advance, total, balance pgtype.Numeric
	)
	err := row.Scan(
		&o.ID,
		&o.CompanyID,
		&o.CustomerID,
		&o.BillNo,
		&o.OrderedOn,
		&o.DeliveryDate,
		&items,
		&advance,
		&total,
		&balance,
		&o.Status,
		&o.Notes,
		&o.CreatedBy,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return Order{}, fmt.Errorf("decode items of order %s: %w", o.ID, err)
		}
	}
	if err := checkOrderEnums(&o); err != nil {
		return Order{}, err
	}
	o.Advance = NumericToDecimal(advance)
	o.TotalAmount = NumericToDecimal(total)
	o.Balance = NumericToDecimal(balance)
	return o, nil
}

// checkOrderEnums rejects unknown statuses so the ledger never bills an item
// it cannot classify. An empty item status reads as Pending.
func checkOrderEnums(o *Order) error {
	if _, err := enum.ParseOrderStatus(o.Status); err != nil {
		return fmt.Errorf("order %s: %w: %v", o.ID, ErrInvalidRow, err)
	}
	for i := range o.Items {
		status, err := enum.ParseItemStatus(o.Items[i].Status)
		if err != nil {
			return fmt.Errorf("order %s item %d: %w: %v", o.ID, i, ErrInvalidRow, err)
		}
		o.Items[i].Status = status
	}
	return nil
}

func encodeItems(items []OutfitItem) ([]byte, error) {
	if items == nil {
		items = []OutfitItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	return b, nil
}

const nextBillNumber = `-- name: NextBillNumber :one
SELECT (COALESCE(MAX(split_part(bill_no, '-', 2)::int), 0) + 1)::int4
FROM orders
WHERE company_id = $1 AND bill_no LIKE $2 || '-%'`

// NextBillNumber returns the next sequence number for bills of the given
// year prefix. Concurrent callers can receive the same number; the unique
// constraint on (company_id, bill_no) catches that.
func (q *Queries) NextBillNumber(ctx context.Context, companyID uuid.UUID, yearPrefix string) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, nextBillNumber, companyID, yearPrefix).Scan(&n)
	return n, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (company_id, customer_id, bill_no, ordered_on, delivery_date, items,
                    advance, total_amount, balance, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	CompanyID    uuid.UUID
	CustomerID   uuid.UUID
	BillNo       string
	OrderedOn    time.Time
	DeliveryDate pgtype.Date
	Items        []OutfitItem
	Advance      decimal.Decimal
	TotalAmount  decimal.Decimal
	Balance      decimal.Decimal
	Status       string
	Notes        pgtype.Text
	CreatedBy    uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	items, err := encodeItems(arg.Items)
	if err != nil {
		return Order{}, err
	}
	row := q.db.QueryRow(ctx, createOrder,
		arg.CompanyID,
		arg.CustomerID,
		arg.BillNo,
		pgtype.Date{Time: arg.OrderedOn, Valid: true},
		arg.DeliveryDate,
		items,
		DecimalToNumeric(arg.Advance),
		DecimalToNumeric(arg.TotalAmount),
		DecimalToNumeric(arg.Balance),
		arg.Status,
		arg.Notes,
		arg.CreatedBy,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND company_id = $2`

type GetOrderParams struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.CompanyID))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND company_id = $2
FOR NO KEY UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, arg.ID, arg.CompanyID))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE company_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::uuid IS NULL OR customer_id = $3)
  AND ($4::date IS NULL OR ordered_on >= $4)
  AND ($5::date IS NULL OR ordered_on <= $5)
  AND ($6::text IS NULL OR bill_no LIKE $6 || '%')
ORDER BY ordered_on DESC, bill_no DESC
LIMIT $7 OFFSET $8`

type ListOrdersParams struct {
	CompanyID  uuid.UUID
	Status     pgtype.Text
	CustomerID pgtype.UUID
	From       pgtype.Date
	To         pgtype.Date
	BillPrefix pgtype.Text
	Limit      int32
	Offset     int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.CompanyID,
		arg.Status,
		arg.CustomerID,
		arg.From,
		arg.To,
		arg.BillPrefix,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const updateOrderItems = `-- name: UpdateOrderItems :one
UPDATE orders
SET items = $2, total_amount = $3, balance = $4, status = $5, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderItemsParams struct {
	ID          uuid.UUID
	Items       []OutfitItem
	TotalAmount decimal.Decimal
	Balance     decimal.Decimal
	Status      string
}

func (q *Queries) UpdateOrderItems(ctx context.Context, arg UpdateOrderItemsParams) (Order, error) {
	items, err := encodeItems(arg.Items)
	if err != nil {
		return Order{}, err
	}
	row := q.db.QueryRow(ctx, updateOrderItems,
		arg.ID,
		items,
		DecimalToNumeric(arg.TotalAmount),
		DecimalToNumeric(arg.Balance),
		arg.Status,
	)
	return scanOrder(row)
}

const updateOrderDetails = `-- name: UpdateOrderDetails :one
UPDATE orders
SET ordered_on = $3, delivery_date = $4, notes = $5, updated_at = now()
WHERE id = $1 AND company_id = $2
RETURNING ` + orderColumns

type UpdateOrderDetailsParams struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	OrderedOn    time.Time
	DeliveryDate pgtype.Date
	Notes        pgtype.Text
}

func (q *Queries) UpdateOrderDetails(ctx context.Context, arg UpdateOrderDetailsParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderDetails,
		arg.ID,
		arg.CompanyID,
		pgtype.Date{Time: arg.OrderedOn, Valid: true},
		arg.DeliveryDate,
		arg.Notes,
	)
	return scanOrder(row)
}

const markOverdueOrders = `-- name: MarkOverdueOrders :many
UPDATE orders SET status = 'Overdue', updated_at = now()
WHERE delivery_date < $1
  AND status IN ('Pending', 'In Progress', 'Trial')
RETURNING id, company_id`

type MarkOverdueOrdersRow struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
}

// MarkOverdueOrders moves open orders whose delivery date is before today to
// Overdue.
func (q *Queries) MarkOverdueOrders(ctx context.Context, today time.Time) ([]MarkOverdueOrdersRow, error) {
	rows, err := q.db.Query(ctx, markOverdueOrders, pgtype.Date{Time: today, Valid: true})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MarkOverdueOrdersRow
	for rows.Next() {
		var i MarkOverdueOrdersRow
		if err := rows.Scan(&i.ID, &i.CompanyID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders SET status = $3, updated_at = now()
WHERE id = $1 AND company_id = $2 AND status = $4
RETURNING ` + orderColumns

// UpdateOrderStatusParams carries the expected current status in From so a
// concurrent change makes the update miss (pgx.ErrNoRows).
type UpdateOrderStatusParams struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Status    string
	From      string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.CompanyID, arg.Status, arg.From))
}

const deleteOrder = `-- name: DeleteOrder :one
DELETE FROM orders WHERE id = $1 AND company_id = $2
RETURNING id`

func (q *Queries) DeleteOrder(ctx context.Context, arg GetOrderParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, deleteOrder, arg.ID, arg.CompanyID).Scan(&id)
	return id, err
}
