package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// DateRangeParams bounds a report by inclusive calendar dates.
type DateRangeParams struct {
	CompanyID uuid.UUID
	StartDate time.Time
	EndDate   time.Time
}

func (p DateRangeParams) args() []any {
	return []any{
		p.CompanyID,
		pgtype.Date{Time: p.StartDate, Valid: true},
		pgtype.Date{Time: p.EndDate, Valid: true},
	}
}

const getCollectionsByMode = `-- name: GetCollectionsByMode :many
SELECT mode, COUNT(*) AS payment_count, COALESCE(SUM(amount), 0) AS total
FROM payments
WHERE company_id = $1 AND paid_on BETWEEN $2 AND $3
GROUP BY mode
ORDER BY total DESC`

type GetCollectionsByModeRow struct {
	Mode         string
	PaymentCount int64
	Total        decimal.Decimal
}

func (q *Queries) GetCollectionsByMode(ctx context.Context, arg DateRangeParams) ([]GetCollectionsByModeRow, error) {
	rows, err := q.db.Query(ctx, getCollectionsByMode, arg.args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []GetCollectionsByModeRow
	for rows.Next() {
		var (
			i     GetCollectionsByModeRow
			total pgtype.Numeric
		)
		if err := rows.Scan(&i.Mode, &i.PaymentCount, &total); err != nil {
			return nil, err
		}
		i.Total = NumericToDecimal(total)
		items = append(items, i)
	}
	return items, rows.Err()
}

const getDailyCollections = `-- name: GetDailyCollections :many
SELECT paid_on, COUNT(*) AS payment_count, COALESCE(SUM(amount), 0) AS total
FROM payments
WHERE company_id = $1 AND paid_on BETWEEN $2 AND $3
GROUP BY paid_on
ORDER BY paid_on`

type GetDailyCollectionsRow struct {
	PaidOn       time.Time
	PaymentCount int64
	Total        decimal.Decimal
}

func (q *Queries) GetDailyCollections(ctx context.Context, arg DateRangeParams) ([]GetDailyCollectionsRow, error) {
	rows, err := q.db.Query(ctx, getDailyCollections, arg.args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []GetDailyCollectionsRow
	for rows.Next() {
		var (
			i     GetDailyCollectionsRow
			total pgtype.Numeric
		)
		if err := rows.Scan(&i.PaidOn, &i.PaymentCount, &total); err != nil {
			return nil, err
		}
		i.Total = NumericToDecimal(total)
		items = append(items, i)
	}
	return items, rows.Err()
}

const getOrderSummary = `-- name: GetOrderSummary :one
SELECT COUNT(*) AS order_count,
       COALESCE(SUM(total_amount), 0) AS billed,
       COALESCE(SUM(GREATEST(balance, 0)), 0) AS outstanding
FROM orders
WHERE company_id = $1 AND ordered_on BETWEEN $2 AND $3
  AND status <> 'Cancelled'`

type GetOrderSummaryRow struct {
	OrderCount  int64
	Billed      decimal.Decimal
	Outstanding decimal.Decimal
}

func (q *Queries) GetOrderSummary(ctx context.Context, arg DateRangeParams) (GetOrderSummaryRow, error) {
	var (
		i                   GetOrderSummaryRow
		billed, outstanding pgtype.Numeric
	)
	err := q.db.QueryRow(ctx, getOrderSummary, arg.args()...).Scan(&i.OrderCount, &billed, &outstanding)
	if err != nil {
		return GetOrderSummaryRow{}, err
	}
	i.Billed = NumericToDecimal(billed)
	i.Outstanding = NumericToDecimal(outstanding)
	return i, nil
}

const listOrdersWithDues = `-- name: ListOrdersWithDues :many
SELECT ` + orderColumns + ` FROM orders
WHERE company_id = $1 AND balance > 0 AND status <> 'Cancelled'
ORDER BY delivery_date NULLS LAST, ordered_on
LIMIT $2`

// ListOrdersWithDues returns open orders whose stored balance is positive,
// soonest delivery first.
func (q *Queries) ListOrdersWithDues(ctx context.Context, companyID uuid.UUID, limit int32) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersWithDues, companyID, limit)
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
