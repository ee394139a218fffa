package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carelink-solutions/carelink-auth/internal/auth"
	"github.com/carelink-solutions/carelink-auth/internal/domain"
	"github.com/carelink-solutions/carelink-auth/internal/service"
	apperrors "github.com/carelink-solutions/carelink-auth/pkg/errors"
	"github.com/carelink-solutions/carelink-auth/pkg/httputil"
	"github.com/carelink-solutions/carelink-auth/pkg/pagination"
	"github.com/carelink-solutions/carelink-auth/pkg/validator"
)

// UserHandler handles HTTP requests for user management endpoints.
type UserHandler struct {
	service *service.UserService
	cookies auth.CookiePolicy
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.UserService, cookies auth.CookiePolicy, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, cookies: cookies, logger: logger}
}

// UpdateUserRequest is a partial update. Absent fields are left unchanged;
// an explicit false or "" is applied.
type UpdateUserRequest struct {
	Email              *string `json:"email" validate:"omitempty,email,max=254"`
	Password           *string `json:"password" validate:"omitempty,min=8,maxbytes=72"`
	Role               *string `json:"role" validate:"omitempty,oneof=caregiver patient"`
	CaregiverID        *string `json:"caregiverID" validate:"omitempty,max=64"`
	PatientID          *string `json:"patientID" validate:"omitempty,max=64"`
	Phone              *string `json:"phone" validate:"omitempty,max=32"`
	Address1           *string `json:"address1" validate:"omitempty,max=200"`
	Address2           *string `json:"address2" validate:"omitempty,max=200"`
	City               *string `json:"city" validate:"omitempty,max=100"`
	State              *string `json:"state" validate:"omitempty,max=100"`
	County             *string `json:"county" validate:"omitempty,max=100"`
	Zip                *string `json:"zip" validate:"omitempty,max=20"`
	FirstName          *string `json:"firstName" validate:"omitempty,max=100"`
	LastName           *string `json:"lastName" validate:"omitempty,max=100"`
	AgreeTerms         *bool   `json:"agreeTerms"`
	AgreePrivacyPolicy *bool   `json:"agreePrivacyPolicy"`
}

func (req *UpdateUserRequest) Normalize() {
	if req.Email != nil {
		e := domain.NormalizeEmail(*req.Email)
		req.Email = &e
	}
}

func (req *UpdateUserRequest) toInput() service.UpdateUserInput {
	in := service.UpdateUserInput{
		UserUpdate: domain.UserUpdate{
			Email:              req.Email,
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
		},
		Password: req.Password,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		in.Role = &role
	}
	return in
}

// List handles GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserFromContext(r.Context())

	page, err := h.service.ListUsers(r.Context(), actor, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

// Get handles GET /api/v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserFromContext(r.Context())

	user, err := h.service.GetUser(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, UserResponse{Message: "User found", User: user})
}

// Update handles PUT /api/v1/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req UpdateUserRequest
	if !decode(w, r, &req) {
		return
	}
	in := req.toInput()
	if in.IsEmpty() && in.Password == nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("request contains no fields to update"), h.logger)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), actor, id, in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// Every password change bumps the token version. The cookie is cleared
	// only when the actor changed their own password.
	if in.Password != nil && actor.ID == user.ID {
		h.cookies.ClearSessionCookie(w)
	}

	httputil.WriteJSON(w, http.StatusOK, UserResponse{Message: "User updated successfully", User: user})
}

// Delete handles DELETE /api/v1/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserFromContext(r.Context())

	user, err := h.service.DeleteUser(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if actor.ID == user.ID {
		h.cookies.ClearSessionCookie(w)
	}

	httputil.WriteJSON(w, http.StatusOK, UserResponse{Message: "User deleted successfully", User: user})
}

// decode reads and validates a JSON body, writing the 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteValidationError(w, r, err)
		return false
	}
	return true
}
