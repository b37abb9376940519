package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stitchbook/api/internal/database"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPassword is returned by a Provider when the email is unknown or
// the password does not match.
var ErrInvalidPassword = errors.New("invalid email or password")

// Provider is the identity provider behind the PIN bridge.
type Provider interface {
	SignIn(ctx context.Context, email, password string) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, password string) error
}

// CredentialStore defines the database methods needed by PasswordProvider.
// Satisfied by *database.Queries; narrow interface for testability.
type CredentialStore interface {
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
	SetUserPassword(ctx context.Context, id uuid.UUID, hashedPassword string) error
}

// PasswordProvider keeps bcrypt hashes on the user row.
type PasswordProvider struct {
	store CredentialStore
	cost  int
}

func NewPasswordProvider(store CredentialStore) *PasswordProvider {
	return &PasswordProvider{store: store, cost: bcrypt.DefaultCost}
}

func (p *PasswordProvider) SignIn(ctx context.Context, email, password string) error {
	user, err := p.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("get user by email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

func (p *PasswordProvider) UpdatePassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := p.store.SetUserPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

// HashPassword returns the bcrypt hash stored for a new account.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
