package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, company_id, email, phone, full_name, pin, hashed_password, phone_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.CompanyID,
		&u.Email,
		&u.Phone,
		&u.FullName,
		&u.Pin,
		&u.HashedPassword,
		&u.PhoneVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (email, phone, full_name, pin, hashed_password)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

type CreateUserParams struct {
	Email          string
	Phone          string
	FullName       string
	Pin            pgtype.Text
	HashedPassword string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.Email,
		arg.Phone,
		arg.FullName,
		arg.Pin,
		arg.HashedPassword,
	)
	return scanUser(row)
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const getUserByPhone = `-- name: GetUserByPhone :one
SELECT ` + userColumns + ` FROM users WHERE phone = $1`

func (q *Queries) GetUserByPhone(ctx context.Context, phone string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByPhone, phone))
}

const setUserPin = `-- name: SetUserPin :exec
UPDATE users SET pin = $2, updated_at = now() WHERE id = $1`

func (q *Queries) SetUserPin(ctx context.Context, id uuid.UUID, pin string) error {
	_, err := q.db.Exec(ctx, setUserPin, id, pin)
	return err
}

const setUserPassword = `-- name: SetUserPassword :exec
UPDATE users SET hashed_password = $2, updated_at = now() WHERE id = $1`

func (q *Queries) SetUserPassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	_, err := q.db.Exec(ctx, setUserPassword, id, hashedPassword)
	return err
}

const setUserCompany = `-- name: SetUserCompany :one
UPDATE users SET company_id = $2, updated_at = now() WHERE id = $1
RETURNING ` + userColumns

func (q *Queries) SetUserCompany(ctx context.Context, id, companyID uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, setUserCompany, id, companyID))
}

const markPhoneVerified = `-- name: MarkPhoneVerified :exec
UPDATE users SET phone_verified = TRUE, updated_at = now() WHERE phone = $1`

func (q *Queries) MarkPhoneVerified(ctx context.Context, phone string) error {
	_, err := q.db.Exec(ctx, markPhoneVerified, phone)
	return err
}

const listUsersByCompany = `-- name: ListUsersByCompany :many
SELECT ` + userColumns + ` FROM users
WHERE company_id = $1
ORDER BY full_name, created_at`

func (q *Queries) ListUsersByCompany(ctx context.Context, companyID uuid.UUID) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsersByCompany, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

const removeUserFromCompany = `-- name: RemoveUserFromCompany :one
UPDATE users SET company_id = NULL, updated_at = now()
WHERE id = $1 AND company_id = $2
RETURNING id`

type RemoveUserFromCompanyParams struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
}

func (q *Queries) RemoveUserFromCompany(ctx context.Context, arg RemoveUserFromCompanyParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, removeUserFromCompany, arg.ID, arg.CompanyID).Scan(&id)
	return id, err
}
