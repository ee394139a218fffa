package http

import (
	"log/slog"
	"net/http"

	"github.com/carelink-solutions/carelink-auth/internal/auth"
	"github.com/carelink-solutions/carelink-auth/internal/domain"
	"github.com/carelink-solutions/carelink-auth/internal/service"
	apperrors "github.com/carelink-solutions/carelink-auth/pkg/errors"
	"github.com/carelink-solutions/carelink-auth/pkg/httputil"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.UserService
	cookies auth.CookiePolicy
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.UserService, cookies auth.CookiePolicy, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email              string `json:"email" validate:"required,email,max=254"`
	Password           string `json:"password" validate:"required,min=8,maxbytes=72"`
	Role               string `json:"role" validate:"required,oneof=caregiver patient"`
	CaregiverID        string `json:"caregiverID" validate:"required_if=Role caregiver,max=64"`
	PatientID          string `json:"patientID" validate:"required_if=Role patient,max=64"`
	Phone              string `json:"phone" validate:"required,max=32"`
	Address1           string `json:"address1" validate:"required,max=200"`
	Address2           string `json:"address2" validate:"max=200"`
	City               string `json:"city" validate:"required,max=100"`
	State              string `json:"state" validate:"required,max=100"`
	County             string `json:"county" validate:"required,max=100"`
	Zip                string `json:"zip" validate:"required,max=20"`
	FirstName          string `json:"firstName" validate:"required,max=100"`
	LastName           string `json:"lastName" validate:"required,max=100"`
	AgreeTerms         bool   `json:"agreeTerms" validate:"eq=true"`
	AgreePrivacyPolicy bool   `json:"agreePrivacyPolicy" validate:"eq=true"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (req *RegisterRequest) Normalize() { req.Email = domain.NormalizeEmail(req.Email) }

func (req *LoginRequest) Normalize() { req.Email = domain.NormalizeEmail(req.Email) }

// --- Response types ---

// UserResponse carries a single user, with a message on mutating routes.
type UserResponse struct {
	Message string       `json:"message,omitempty"`
	User    *domain.User `json:"user"`
}

// LoginResponse returns both tokens; the access token is also set as the
// session cookie.
type LoginResponse struct {
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:              req.Email,
		Password:           req.Password,
		Role:               domain.Role(req.Role),
		CaregiverID:        req.CaregiverID,
		PatientID:          req.PatientID,
		Phone:              req.Phone,
		Address1:           req.Address1,
		Address2:           req.Address2,
		City:               req.City,
		State:              req.State,
		County:             req.County,
		Zip:                req.Zip,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		AgreeTerms:         req.AgreeTerms,
		AgreePrivacyPolicy: req.AgreePrivacyPolicy,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, UserResponse{Message: "Registration Successful!", User: user})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.Login(r.Context(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.SetSessionCookie(w, res.Tokens.AccessToken)
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		Message:      "Login Successful!",
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("login user data not found"), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, UserResponse{User: user})
}

// Logout handles POST /api/v1/auth/logout. It only clears the cookie; the
// token itself stays valid until it expires or sessions are revoked.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearSessionCookie(w)
	httputil.WriteMessage(w, http.StatusOK, "Logout successful")
}

// LogoutAll handles POST /api/v1/auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("login user data not found"), h.logger)
		return
	}

	if err := h.service.RevokeSessions(r.Context(), user); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.ClearSessionCookie(w)
	httputil.WriteMessage(w, http.StatusOK, "All sessions revoked")
}
