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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stitchbook/api/internal/auth"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/media"
	"github.com/stitchbook/api/internal/middleware"
	"github.com/stitchbook/api/internal/service"
)

// CompanyStore defines the database methods needed by company handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CompanyStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
	CreateCompany(ctx context.Context, arg database.CreateCompanyParams) (database.Company, error)
	GetCompany(ctx context.Context, id uuid.UUID) (database.Company, error)
	UpdateCompany(ctx context.Context, arg database.UpdateCompanyParams) (database.Company, error)
	SetUserCompany(ctx context.Context, id, companyID uuid.UUID) (database.User, error)
}

// CompanyHandler handles the boutique profile shown on every bill.
type CompanyHandler struct {
	store     CompanyStore
	pool      service.TxBeginner
	newStore  func(db database.DBTX) CompanyStore
	media     media.Store
	jwtSecret string
}

// NewCompanyHandler creates a new CompanyHandler. store runs outside
// transactions; newStore binds one to a transaction.
func NewCompanyHandler(store CompanyStore, pool service.TxBeginner, newStore func(db database.DBTX) CompanyStore, mediaStore media.Store, jwtSecret string) *CompanyHandler {
	return &CompanyHandler{store: store, pool: pool, newStore: newStore, media: mediaStore, jwtSecret: jwtSecret}
}

// RegisterRoutes registers company creation. Mounted at /companies for any
// signed-in user.
func (h *CompanyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
}

// RegisterCompanyRoutes registers the company-scoped endpoints.
// Expected to be mounted inside /companies/{cid}.
func (h *CompanyHandler) RegisterCompanyRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Update)
	r.Post("/signature", h.UploadSignature)
}

// --- Request / Response types ---

type companyRequest struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	GSTIN     string `json:"gstin"`
	BillTerms string `json:"bill_terms"`
}

type companyResponse struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      uuid.UUID `json:"owner_id"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	GSTIN        *string   `json:"gstin"`
	BillTerms    *string   `json:"bill_terms"`
	SignatureKey *string   `json:"signature_key"`
}

type createCompanyResponse struct {
	Company companyResponse `json:"company"`
	tokenResponse
}

func toCompanyResponse(c database.Company) companyResponse {
	resp := companyResponse{
		ID:      c.ID,
		OwnerID: c.OwnerID,
		Name:    c.Name,
		Address: c.Address,
		Phone:   c.Phone,
	}
	if c.Gstin.Valid {
		resp.GSTIN = &c.Gstin.String
	}
	if c.BillTerms.Valid {
		resp.BillTerms = &c.BillTerms.String
	}
	if c.SignatureKey.Valid {
		resp.SignatureKey = &c.SignatureKey.String
	}
	return resp
}

func optionalText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	return pgtype.Text{String: s, Valid: s != ""}
}

// --- Handlers ---

// Create sets up the signed-in user's company and returns fresh tokens that
// carry its id.
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req companyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	store := h.newStore(tx)

	user, err := store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
			return
		}
		log.Printf("ERROR: get user for company: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if user.CompanyID.Valid {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "user already belongs to a company"})
		return
	}

	company, err := store.CreateCompany(r.Context(), database.CreateCompanyParams{
		OwnerID:   user.ID,
		Name:      req.Name,
		Address:   strings.TrimSpace(req.Address),
		Phone:     strings.TrimSpace(req.Phone),
		Gstin:     optionalText(req.GSTIN),
		BillTerms: optionalText(req.BillTerms),
	})
	if err != nil {
		log.Printf("ERROR: create company: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	user, err = store.SetUserCompany(r.Context(), user.ID, company.ID)
	if err != nil {
		log.Printf("ERROR: set user company: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit company: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	accessToken, err := auth.GenerateToken(h.jwtSecret, user.ID, company.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	refreshToken, err := auth.GenerateRefreshToken(h.jwtSecret, user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, createCompanyResponse{
		Company: toCompanyResponse(company),
		tokenResponse: tokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			User:         toUserResponse(user),
		},
	})
}

// Get returns the company profile.
func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	company, err := h.store.GetCompany(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "company not found"})
			return
		}
		log.Printf("ERROR: get company: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCompanyResponse(company))
}

// Update replaces the editable profile fields. The signature is kept.
func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	var req companyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	current, err := h.store.GetCompany(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "company not found"})
			return
		}
		log.Printf("ERROR: get company for update: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	company, err := h.store.UpdateCompany(r.Context(), database.UpdateCompanyParams{
		ID:           companyID,
		Name:         req.Name,
		Address:      strings.TrimSpace(req.Address),
		Phone:        strings.TrimSpace(req.Phone),
		Gstin:        optionalText(req.GSTIN),
		BillTerms:    optionalText(req.BillTerms),
		SignatureKey: current.SignatureKey,
	})
	if err != nil {
		log.Printf("ERROR: update company: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCompanyResponse(company))
}

// UploadSignature stores the signature image printed at the foot of bills.
func (h *CompanyHandler) UploadSignature(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	upload, ok := saveUpload(w, r, h.media, companyID)
	if !ok {
		return
	}
	if upload.Kind != media.KindImage {
		h.discard(r.Context(), upload.Key)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signature must be an image"})
		return
	}

	current, err := h.store.GetCompany(r.Context(), companyID)
	if err != nil {
		h.discard(r.Context(), upload.Key)
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "company not found"})
			return
		}
		log.Printf("ERROR: get company for signature: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	company, err := h.store.UpdateCompany(r.Context(), database.UpdateCompanyParams{
		ID:           companyID,
		Name:         current.Name,
		Address:      current.Address,
		Phone:        current.Phone,
		Gstin:        current.Gstin,
		BillTerms:    current.BillTerms,
		SignatureKey: pgtype.Text{String: upload.Key, Valid: true},
	})
	if err != nil {
		h.discard(r.Context(), upload.Key)
		log.Printf("ERROR: set company signature: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if current.SignatureKey.Valid {
		h.discard(r.Context(), current.SignatureKey.String)
	}

	writeJSON(w, http.StatusOK, toCompanyResponse(company))
}

func (h *CompanyHandler) discard(ctx context.Context, key string) {
	if err := h.media.Delete(ctx, key); err != nil {
		log.Printf("WARN: delete media %s: %v", key, err)
	}
}
