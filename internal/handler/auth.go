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
	"github.com/stitchbook/api/internal/otp"
	"github.com/stitchbook/api/internal/validate"
)

// Authenticator defines the credential operations needed by auth handlers.
// Satisfied by *auth.Bridge; narrow interface for testability.
type Authenticator interface {
	PinLogin(ctx context.Context, phone, pin string) (database.User, error)
	EmailLogin(ctx context.Context, email, pin string) (database.User, error)
	Register(ctx context.Context, p auth.RegisterParams) (database.User, error)
	ChangePIN(ctx context.Context, userID uuid.UUID, current, next string) error
	ResetPIN(ctx context.Context, phone, next string) error
}

// AuthStore defines the database methods needed by auth handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type AuthStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
	MarkPhoneVerified(ctx context.Context, phone string) error
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	bridge    Authenticator
	store     AuthStore
	otp       otp.Sender
	jwtSecret string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(bridge Authenticator, store AuthStore, sender otp.Sender, jwtSecret string) *AuthHandler {
	return &AuthHandler{bridge: bridge, store: store, otp: sender, jwtSecret: jwtSecret}
}

// RegisterRoutes registers the public auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/pin-login", h.PinLogin)
	r.Post("/auth/login", h.EmailLogin)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/otp/send", h.SendOTP)
	r.Post("/auth/otp/verify", h.VerifyOTP)
	r.Post("/auth/pin/reset", h.ResetPIN)
}

// RegisterProtectedRoutes registers auth endpoints that need a signed-in user.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/auth/me", h.Me)
	r.Post("/auth/pin/change", h.ChangePIN)
}

// --- Request / Response types ---

type pinLoginRequest struct {
	Phone string `json:"phone"`
	Pin   string `json:"pin"`
}

type emailLoginRequest struct {
	Email string `json:"email"`
	Pin   string `json:"pin"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	FullName string `json:"full_name"`
	Pin      string `json:"pin"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
}

type verifyOTPRequest struct {
	Phone string `json:"phone"`
	Token string `json:"token"`
	Code  string `json:"code"`
}

type resetPINRequest struct {
	Phone  string `json:"phone"`
	Token  string `json:"token"`
	Code   string `json:"code"`
	NewPin string `json:"new_pin"`
}

type changePINRequest struct {
	CurrentPin string `json:"current_pin"`
	NewPin     string `json:"new_pin"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID            uuid.UUID  `json:"id"`
	CompanyID     *uuid.UUID `json:"company_id"`
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	PhoneVerified bool       `json:"phone_verified"`
}

func toUserResponse(u database.User) userResponse {
	resp := userResponse{
		ID:            u.ID,
		FullName:      u.FullName,
		Email:         u.Email,
		Phone:         u.Phone,
		PhoneVerified: u.PhoneVerified,
	}
	if u.CompanyID.Valid {
		cid := uuid.UUID(u.CompanyID.Bytes)
		resp.CompanyID = &cid
	}
	return resp
}

// --- Handlers ---

// PinLogin handles phone + PIN authentication.
func (h *AuthHandler) PinLogin(w http.ResponseWriter, r *http.Request) {
	var req pinLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Phone == "" || req.Pin == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone and pin are required"})
		return
	}

	user, err := h.bridge.PinLogin(r.Context(), req.Phone, req.Pin)
	if err != nil {
		writeLoginError(w, err)
		return
	}

	h.respondWithTokens(w, http.StatusOK, user)
}

// EmailLogin handles email + PIN authentication for users who do not
// remember the phone number on their account.
func (h *AuthHandler) EmailLogin(w http.ResponseWriter, r *http.Request) {
	var req emailLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Email == "" || req.Pin == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and pin are required"})
		return
	}

	user, err := h.bridge.EmailLogin(r.Context(), req.Email, req.Pin)
	if err != nil {
		writeLoginError(w, err)
		return
	}

	h.respondWithTokens(w, http.StatusOK, user)
}

// Register creates an account and signs it in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
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

	user, err := h.bridge.Register(r.Context(), auth.RegisterParams{
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
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "email or phone already registered"})
			return
		}
		log.Printf("ERROR: register user: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithTokens(w, http.StatusCreated, user)
}

// Refresh exchanges a valid refresh token for a new access + refresh token pair.
// The company id is read again so a token issued before the user created a
// company picks it up.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refresh_token is required"})
		return
	}

	userID, err := auth.ValidateRefreshToken(h.jwtSecret, req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "User not found"})
			return
		}
		log.Printf("ERROR: get user for refresh: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithTokens(w, http.StatusOK, user)
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
			return
		}
		log.Printf("ERROR: get current user: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// SendOTP sends a verification code to a phone and returns the token the
// client hands back with the code.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	phone := validate.NormalizePhone(req.Phone)
	if !validate.Phone(phone) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a valid 10-digit mobile number is required"})
		return
	}

	token, err := h.otp.Send(r.Context(), phone)
	if err != nil {
		log.Printf("ERROR: send otp: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "could not send OTP, try again"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// VerifyOTP checks a code and marks the phone verified.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	phone := validate.NormalizePhone(req.Phone)
	if !h.confirmOTP(w, r, phone, req.Token, req.Code) {
		return
	}

	if err := h.store.MarkPhoneVerified(r.Context(), phone); err != nil {
		log.Printf("ERROR: mark phone verified: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// ResetPIN sets a new PIN after the user proves they hold the phone.
func (h *AuthHandler) ResetPIN(w http.ResponseWriter, r *http.Request) {
	var req resetPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if !validate.PIN(req.NewPin) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": auth.ErrInvalidPIN.Error()})
		return
	}

	phone := validate.NormalizePhone(req.Phone)
	if !h.confirmOTP(w, r, phone, req.Token, req.Code) {
		return
	}

	if err := h.bridge.ResetPIN(r.Context(), phone, req.NewPin); err != nil {
		writeLoginError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePIN replaces the signed-in user's PIN.
func (h *AuthHandler) ChangePIN(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req changePINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.bridge.ChangePIN(r.Context(), claims.UserID, req.CurrentPin, req.NewPin); err != nil {
		writeLoginError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// confirmOTP writes the error response and returns false when the code does
// not check out or the token was issued for a different phone.
func (h *AuthHandler) confirmOTP(w http.ResponseWriter, r *http.Request, phone, token, code string) bool {
	if token == "" || code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token and code are required"})
		return false
	}
	if !validate.Phone(phone) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a valid 10-digit mobile number is required"})
		return false
	}

	sentTo, ok, err := h.otp.Confirm(r.Context(), token, code)
	if err != nil {
		if errors.Is(err, otp.ErrUnknownToken) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "OTP expired, request a new one"})
			return false
		}
		log.Printf("ERROR: confirm otp: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "could not verify OTP, try again"})
		return false
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Incorrect OTP"})
		return false
	}
	if sentTo != phone {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "OTP was not sent to this phone"})
		return false
	}
	return true
}

// writeLoginError maps credential errors to the messages the app shows as is.
func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
	case errors.Is(err, auth.ErrIncorrectPIN):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Incorrect PIN"})
	case errors.Is(err, auth.ErrIncorrectCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Incorrect credentials"})
	case errors.Is(err, auth.ErrInvalidPIN):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: auth: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, status int, user database.User) {
	var companyID uuid.UUID
	if user.CompanyID.Valid {
		companyID = user.CompanyID.Bytes
	}

	accessToken, err := auth.GenerateToken(h.jwtSecret, user.ID, companyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	refreshToken, err := auth.GenerateRefreshToken(h.jwtSecret, user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, status, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         toUserResponse(user),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}
