package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const companyColumns = `id, owner_id, name, address, phone, gstin, bill_terms, signature_key, created_at, updated_at`

func scanCompany(row interface{ Scan(...any) error }) (Company, error) {
	var c Company
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Address,
		&c.Phone,
		&c.Gstin,
		&c.BillTerms,
		&c.SignatureKey,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

const createCompany = `-- name: CreateCompany :one
INSERT INTO companies (owner_id, name, address, phone, gstin, bill_terms, signature_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + companyColumns

type CreateCompanyParams struct {
	OwnerID      uuid.UUID
	Name         string
	Address      string
	Phone        string
	Gstin        pgtype.Text
	BillTerms    pgtype.Text
	SignatureKey pgtype.Text
}

func (q *Queries) CreateCompany(ctx context.Context, arg CreateCompanyParams) (Company, error) {
	row := q.db.QueryRow(ctx, createCompany,
		arg.OwnerID,
		arg.Name,
		arg.Address,
		arg.Phone,
		arg.Gstin,
		arg.BillTerms,
		arg.SignatureKey,
	)
	return scanCompany(row)
}

const getCompany = `-- name: GetCompany :one
SELECT ` + companyColumns + ` FROM companies WHERE id = $1`

func (q *Queries) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	return scanCompany(q.db.QueryRow(ctx, getCompany, id))
}

const updateCompany = `-- name: UpdateCompany :one
UPDATE companies
SET name = $2, address = $3, phone = $4, gstin = $5, bill_terms = $6,
    signature_key = $7, updated_at = now()
WHERE id = $1
RETURNING ` + companyColumns

type UpdateCompanyParams struct {
	ID           uuid.UUID
	Name         string
	Address      string
	Phone        string
	Gstin        pgtype.Text
	BillTerms    pgtype.Text
	SignatureKey pgtype.Text
}

func (q *Queries) UpdateCompany(ctx context.Context, arg UpdateCompanyParams) (Company, error) {
	row := q.db.QueryRow(ctx, updateCompany,
		arg.ID,
		arg.Name,
		arg.Address,
		arg.Phone,
		arg.Gstin,
		arg.BillTerms,
		arg.SignatureKey,
	)
	return scanCompany(row)
}
