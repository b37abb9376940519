package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type User struct {
	ID             uuid.UUID
	CompanyID      pgtype.UUID
	Email          string
	Phone          string
	FullName       string
	Pin            pgtype.Text
	HashedPassword string
	PhoneVerified  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Company struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Name         string
	Address      string
	Phone        string
	Gstin        pgtype.Text
	BillTerms    pgtype.Text
	SignatureKey pgtype.Text
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Customer struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	DisplayID string
	Name      string
	Mobile    string
	Location  pgtype.Text
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order is one bill. Items is stored as a JSONB document; TotalAmount and
// Balance are snapshots written on every mutation, readers recompute them.
type Order struct {
	ID           uuid.UUID
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
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OutfitItem is one garment line inside Order.Items. Cost may arrive in any
// of Amount, TotalCost or Rate (× Quantity) depending on which app build wrote
// the document.
type OutfitItem struct {
	OutfitType   string              `json:"outfit_type"`
	Quantity     int32               `json:"quantity"`
	Amount       decimal.NullDecimal `json:"amount"`
	TotalCost    decimal.NullDecimal `json:"total_cost"`
	Rate         decimal.NullDecimal `json:"rate"`
	Measurements map[string]string   `json:"measurements,omitempty"`
	Images       []string            `json:"images,omitempty"`
	Notes        string              `json:"notes,omitempty"`
	AudioNote    string              `json:"audio_note,omitempty"`
	DeliveryDate string              `json:"delivery_date,omitempty"`
	Status       string              `json:"status"`
}

type Payment struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	CustomerID uuid.UUID
	CompanyID  uuid.UUID
	Amount     decimal.Decimal
	Mode       string
	PaidOn     time.Time
	Type       pgtype.Text
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
}
