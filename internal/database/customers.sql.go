package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, company_id, display_id, name, mobile, location, is_active, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID,
		&c.CompanyID,
		&c.DisplayID,
		&c.Name,
		&c.Mobile,
		&c.Location,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

const nextCustomerNumber = `-- name: NextCustomerNumber :one
SELECT (COALESCE(MAX(split_part(display_id, '-', 2)::int), 0) + 1)::int4
FROM customers
WHERE company_id = $1 AND display_id LIKE 'C-%'`

func (q *Queries) NextCustomerNumber(ctx context.Context, companyID uuid.UUID) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, nextCustomerNumber, companyID).Scan(&n)
	return n, err
}

const createCustomer = `-- name: CreateCustomer :one
INSERT INTO customers (company_id, display_id, name, mobile, location)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + customerColumns

type CreateCustomerParams struct {
	CompanyID uuid.UUID
	DisplayID string
	Name      string
	Mobile    string
	Location  pgtype.Text
}

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx, createCustomer,
		arg.CompanyID,
		arg.DisplayID,
		arg.Name,
		arg.Mobile,
		arg.Location,
	)
	return scanCustomer(row)
}

const getCustomer = `-- name: GetCustomer :one
SELECT ` + customerColumns + ` FROM customers
WHERE id = $1 AND company_id = $2 AND is_active = TRUE`

type GetCustomerParams struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
}

func (q *Queries) GetCustomer(ctx context.Context, arg GetCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomer, arg.ID, arg.CompanyID))
}

const listCustomers = `-- name: ListCustomers :many
SELECT ` + customerColumns + ` FROM customers
WHERE company_id = $1
  AND is_active = TRUE
  AND ($2::text IS NULL OR name ILIKE '%' || $2 || '%' OR mobile LIKE '%' || $2 || '%' OR display_id ILIKE '%' || $2 || '%')
ORDER BY name
LIMIT $3 OFFSET $4`

type ListCustomersParams struct {
	CompanyID uuid.UUID
	Search    pgtype.Text
	Limit     int32
	Offset    int32
}

func (q *Queries) ListCustomers(ctx context.Context, arg ListCustomersParams) ([]Customer, error) {
	rows, err := q.db.Query(ctx, listCustomers, arg.CompanyID, arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const updateCustomer = `-- name: UpdateCustomer :one
UPDATE customers
SET name = $3, mobile = $4, location = $5, updated_at = now()
WHERE id = $1 AND company_id = $2 AND is_active = TRUE
RETURNING ` + customerColumns

type UpdateCustomerParams struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Mobile    string
	Location  pgtype.Text
}

func (q *Queries) UpdateCustomer(ctx context.Context, arg UpdateCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx, updateCustomer,
		arg.ID,
		arg.CompanyID,
		arg.Name,
		arg.Mobile,
		arg.Location,
	)
	return scanCustomer(row)
}

const softDeleteCustomer = `-- name: SoftDeleteCustomer :one
UPDATE customers SET is_active = FALSE, updated_at = now()
WHERE id = $1 AND company_id = $2 AND is_active = TRUE
RETURNING id`

type SoftDeleteCustomerParams struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
}

func (q *Queries) SoftDeleteCustomer(ctx context.Context, arg SoftDeleteCustomerParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteCustomer, arg.ID, arg.CompanyID).Scan(&id)
	return id, err
}
