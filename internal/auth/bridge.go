package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/validate"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrIncorrectPIN         = errors.New("incorrect PIN")
	ErrIncorrectCredentials = errors.New("incorrect credentials")
	ErrInvalidPIN           = errors.New("PIN must be 4 digits")
)

// UserDirectory defines the database methods needed by Bridge.
// Satisfied by *database.Queries; narrow interface for testability.
type UserDirectory interface {
	GetUserByPhone(ctx context.Context, phone string) (database.User, error)
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
	SetUserPin(ctx context.Context, id uuid.UUID, pin string) error
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
}

// Candidate is one provider password to try. Migrate rotates the provider
// credential to the master password when the candidate succeeds.
type Candidate struct {
	Password string
	Migrate  bool
}

// Bridge lets users sign in with a 4-digit PIN while every provider account
// holds the same master password. Accounts created before the master
// password still carry a PIN-derived credential; they are migrated on their
// first successful login.
type Bridge struct {
	users        UserDirectory
	provider     Provider
	master       string
	legacySuffix string
}

func NewBridge(users UserDirectory, provider Provider, master, legacySuffix string) *Bridge {
	return &Bridge{users: users, provider: provider, master: master, legacySuffix: legacySuffix}
}

// Candidates lists the provider passwords tried for pin, in order.
func (b *Bridge) Candidates(pin string) []Candidate {
	c := []Candidate{{Password: b.master}}
	if b.legacySuffix != "" {
		c = append(c, Candidate{Password: pin + b.legacySuffix, Migrate: true})
	}
	return append(c, Candidate{Password: pin, Migrate: true})
}

// PinLogin signs in by phone number and PIN.
func (b *Bridge) PinLogin(ctx context.Context, phone, pin string) (database.User, error) {
	user, err := b.users.GetUserByPhone(ctx, validate.NormalizePhone(phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.User{}, ErrUserNotFound
		}
		return database.User{}, fmt.Errorf("get user by phone: %w", err)
	}
	return b.login(ctx, user, pin)
}

// EmailLogin signs in by email and PIN through the same chain.
func (b *Bridge) EmailLogin(ctx context.Context, email, pin string) (database.User, error) {
	user, err := b.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.User{}, ErrUserNotFound
		}
		return database.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return b.login(ctx, user, pin)
}

func (b *Bridge) login(ctx context.Context, user database.User, pin string) (database.User, error) {
	// First PIN check: no provider call for a wrong PIN.
	if user.Pin.Valid && user.Pin.String != pin {
		return database.User{}, ErrIncorrectPIN
	}

	if err := b.signIn(ctx, user, pin); err != nil {
		return database.User{}, err
	}

	// Second PIN check against a fresh read. Both checks must agree.
	fresh, err := b.users.GetUserByID(ctx, user.ID)
	if err != nil {
		return database.User{}, fmt.Errorf("reload user: %w", err)
	}
	if fresh.Pin.Valid {
		if fresh.Pin.String != pin {
			return database.User{}, ErrIncorrectPIN
		}
		return fresh, nil
	}

	// Pre-migration account: backfill the PIN that just authenticated.
	if err := b.users.SetUserPin(ctx, fresh.ID, pin); err != nil {
		return database.User{}, fmt.Errorf("backfill pin: %w", err)
	}
	fresh.Pin = pgtype.Text{String: pin, Valid: true}
	return fresh, nil
}

func (b *Bridge) signIn(ctx context.Context, user database.User, pin string) error {
	for _, c := range b.Candidates(pin) {
		err := b.provider.SignIn(ctx, user.Email, c.Password)
		if errors.Is(err, ErrInvalidPassword) {
			continue
		}
		if err != nil {
			return fmt.Errorf("provider sign in: %w", err)
		}
		if c.Migrate {
			// A failed rotation leaves the legacy credential in place; the
			// next login retries it.
			if err := b.provider.UpdatePassword(ctx, user.ID, b.master); err != nil {
				log.Printf("WARN: rotate credential for user %s: %v", user.ID, err)
			}
		}
		return nil
	}
	return ErrIncorrectCredentials
}

// RegisterParams are the fields collected by the sign-up screen.
type RegisterParams struct {
	Email    string
	Phone    string
	FullName string
	PIN      string
}

// Register creates a user whose provider credential is the master password.
func (b *Bridge) Register(ctx context.Context, p RegisterParams) (database.User, error) {
	if !validate.PIN(p.PIN) {
		return database.User{}, ErrInvalidPIN
	}
	hash, err := HashPassword(b.master)
	if err != nil {
		return database.User{}, err
	}
	user, err := b.users.CreateUser(ctx, database.CreateUserParams{
		Email:          strings.TrimSpace(p.Email),
		Phone:          validate.NormalizePhone(p.Phone),
		FullName:       strings.TrimSpace(p.FullName),
		Pin:            pgtype.Text{String: p.PIN, Valid: true},
		HashedPassword: hash,
	})
	if err != nil {
		return database.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// ChangePIN replaces the PIN after checking the current one.
func (b *Bridge) ChangePIN(ctx context.Context, userID uuid.UUID, current, next string) error {
	if !validate.PIN(next) {
		return ErrInvalidPIN
	}
	user, err := b.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}
	if user.Pin.Valid && user.Pin.String != current {
		return ErrIncorrectPIN
	}
	if err := b.users.SetUserPin(ctx, userID, next); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

// ResetPIN sets a new PIN for the account on phone. The caller must have
// confirmed an OTP sent to that phone.
func (b *Bridge) ResetPIN(ctx context.Context, phone, next string) error {
	if !validate.PIN(next) {
		return ErrInvalidPIN
	}
	user, err := b.users.GetUserByPhone(ctx, validate.NormalizePhone(phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user by phone: %w", err)
	}
	if err := b.users.SetUserPin(ctx, user.ID, next); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}
