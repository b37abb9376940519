package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stitchbook/api/internal/auth"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/middleware"
	"github.com/stitchbook/api/internal/validate"
)

// UserStore defines the database methods needed by staff handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (database.Company, error)
	ListUsersByCompany(ctx context.Context, companyID uuid.UUID) ([]database.User, error)
	SetUserCompany(ctx context.Context, id, companyID uuid.UUID) (database.User, error)
	RemoveUserFromCompany(ctx context.Context, arg database.RemoveUserFromCompanyParams) (uuid.UUID, error)
}

// Registrar creates sign-in accounts. Satisfied by *auth.Bridge.
type Registrar interface {
	Register(ctx context.Context, p auth.RegisterParams) (database.User, error)
}

// UserHandler manages the people who work at a company. The owner adds
// staff accounts; staff sign in with their own phone and PIN.
type UserHandler struct {
	store     UserStore
	registrar Registrar
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(store UserStore, registrar Registrar) *UserHandler {
	return &UserHandler{store: store, registrar: registrar}
}

// RegisterRoutes registers staff endpoints.
// Expected to be mounted inside /companies/{cid}/staff.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type createStaffRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	FullName string `json:"full_name"`
	Pin      string `json:"pin"`
}

type staffResponse struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone"`
	IsOwner  bool      `json:"is_owner"`
}

func toStaffResponse(u database.User, company database.Company) staffResponse {
	return staffResponse{
		ID:       u.ID,
		FullName: u.FullName,
		Email:    u.Email,
		Phone:    u.Phone,
		IsOwner:  u.ID == company.OwnerID,
	}
}

// --- Handlers ---

// List returns everyone attached to the company.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}

	users, err := h.store.ListUsersByCompany(r.Context(), company.ID)
	if err != nil {
		log.Printf("ERROR: list staff: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]staffResponse, len(users))
	for i, u := range users {
		resp[i] = toStaffResponse(u, company)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create registers a staff account and attaches it to the company. Owner only.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	company, ok := h.ownedCompany(w, r)
	if !ok {
		return
	}

	var req createStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	if req.FullName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "full_name is required"})
		return
	}
	if !validate.Email(req.Email) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a valid email is required"})
		return
	}
	if !validate.Phone(validate.NormalizePhone(req.Phone)) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a valid 10-digit mobile number is required"})
		return
	}

	user, err := h.registrar.Register(r.Context(), auth.RegisterParams{
		Email:    req.Email,
		Phone:    req.Phone,
		FullName: req.FullName,
		PIN:      req.Pin,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPIN) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "email or phone already registered"})
			return
		}
		log.Printf("ERROR: register staff: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	user, err = h.store.SetUserCompany(r.Context(), user.ID, company.ID)
	if err != nil {
		log.Printf("ERROR: attach staff %s to company %s: %v", user.ID, company.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toStaffResponse(user, company))
}

// Delete detaches a staff member from the company. The account itself is
// kept. Owner only; the owner cannot be removed.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	company, ok := h.ownedCompany(w, r)
	if !ok {
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return
	}
	if userID == company.OwnerID {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "the owner cannot be removed"})
		return
	}

	_, err = h.store.RemoveUserFromCompany(r.Context(), database.RemoveUserFromCompanyParams{
		ID:        userID,
		CompanyID: company.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		log.Printf("ERROR: remove staff: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *UserHandler) company(w http.ResponseWriter, r *http.Request) (database.Company, bool) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return database.Company{}, false
	}

	company, err := h.store.GetCompany(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "company not found"})
			return database.Company{}, false
		}
		log.Printf("ERROR: get company for staff: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.Company{}, false
	}
	return company, true
}

func (h *UserHandler) ownedCompany(w http.ResponseWriter, r *http.Request) (database.Company, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return database.Company{}, false
	}

	company, ok := h.company(w, r)
	if !ok {
		return database.Company{}, false
	}
	if company.OwnerID != claims.UserID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "owner access required"})
		return database.Company{}, false
	}
	return company, true
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
