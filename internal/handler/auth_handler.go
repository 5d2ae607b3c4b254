package handler

import (
	"errors"
	"io"
	"net/http"

	"rbac-auth/internal/middleware"
	"rbac-auth/internal/model"
	"rbac-auth/internal/service"
	"rbac-auth/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.LoginResponse{
		Success:      true,
		Message:      "Login successful",
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         result.User.Profile(),
	})
}

// Refresh takes the refresh token from the Authorization header, falling back
// to a refresh_token field in the body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := middleware.BearerToken(r)
	if !ok {
		var payload model.RefreshRequest
		if err := decodeOptionalJSON(w, r, &payload); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, err)
			return
		}
		raw = payload.RefreshToken
	}

	access, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.RefreshResponse{Success: true, Token: access})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	raw, ok := middleware.BearerToken(r)
	if !ok {
		writeError(w, apierror.Unauthorized("Missing or invalid authorization header"))
		return
	}

	user, err := h.service.Profile(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user.Profile())
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw, ok := middleware.BearerToken(r)
	if !ok {
		writeError(w, apierror.Unauthorized("Missing or invalid authorization header"))
		return
	}

	if err := h.service.Logout(r.Context(), raw); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Logout acknowledged. Client should clear tokens.")
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	in := service.RegisterInput{
		Username:     payload.Username,
		Password:     payload.Password,
		Email:        payload.Email,
		FullName:     payload.FullName,
		RoleName:     payload.RoleName,
		DepartmentID: payload.DepartmentID,
	}
	if caller, ok := middleware.UserFromContext(r.Context()); ok {
		in.Caller = caller
	}

	id, err := h.service.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.RegisterResponse{
		Success: true,
		Message: "User registered successfully. Please log in.",
		UserID:  id,
	})
}
