package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/enum"
)

const paymentColumns = `id, order_id, customer_id, company_id, amount, mode, paid_on, type, created_by, created_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var (
		p      Payment
		amount pgtype.Numeric
	)
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.CustomerID,
		&p.CompanyID,
		&amount,
		&p.Mode,
		&p.PaidOn,
		&p.Type,
		&p.CreatedBy,
		&p.CreatedAt,
	)
	if err != nil {
		return Payment{}, err
	}
	if err := checkPaymentEnums(p); err != nil {
		return Payment{}, err
	}
	p.Amount = NumericToDecimal(amount)
	return p, nil
}

func checkPaymentEnums(p Payment) error {
	if _, err := enum.ParsePaymentMode(p.Mode); err != nil {
		return fmt.Errorf("payment %s: %w: %v", p.ID, ErrInvalidRow, err)
	}
	if _, err := enum.ParsePaymentType(p.Type.String); err != nil {
		return fmt.Errorf("payment %s: %w: %v", p.ID, ErrInvalidRow, err)
	}
	return nil
}

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (order_id, customer_id, company_id, amount, mode, paid_on, type, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	OrderID    uuid.UUID
	CustomerID uuid.UUID
	CompanyID  uuid.UUID
	Amount     decimal.Decimal
	Mode       string
	PaidOn     time.Time
	Type       pgtype.Text
	CreatedBy  uuid.UUID
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment,
		arg.OrderID,
		arg.CustomerID,
		arg.CompanyID,
		DecimalToNumeric(arg.Amount),
		arg.Mode,
		pgtype.Date{Time: arg.PaidOn, Valid: true},
		arg.Type,
		arg.CreatedBy,
	)
	return scanPayment(row)
}

const getPayment = `-- name: GetPayment :one
SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND order_id = $2`

type GetPaymentParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
}

func (q *Queries) GetPayment(ctx context.Context, arg GetPaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPayment, arg.ID, arg.OrderID))
}

const listPaymentsByOrder = `-- name: ListPaymentsByOrder :many
SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1
ORDER BY paid_on, created_at`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const updatePayment = `-- name: UpdatePayment :one
UPDATE payments SET amount = $3, mode = $4, paid_on = $5
WHERE id = $1 AND order_id = $2
RETURNING ` + paymentColumns

type UpdatePaymentParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
	Amount  decimal.Decimal
	Mode    string
	PaidOn  time.Time
}

func (q *Queries) UpdatePayment(ctx context.Context, arg UpdatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, updatePayment,
		arg.ID,
		arg.OrderID,
		DecimalToNumeric(arg.Amount),
		arg.Mode,
		pgtype.Date{Time: arg.PaidOn, Valid: true},
	)
	return scanPayment(row)
}

const deletePayment = `-- name: DeletePayment :one
DELETE FROM payments WHERE id = $1 AND order_id = $2
RETURNING id`

func (q *Queries) DeletePayment(ctx context.Context, arg GetPaymentParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, deletePayment, arg.ID, arg.OrderID).Scan(&id)
	return id, err
}
