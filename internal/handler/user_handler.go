package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rbac-auth/internal/middleware"
	"rbac-auth/internal/model"
	"rbac-auth/internal/service"
	"rbac-auth/pkg/apierror"
)

type UserHandler struct {
	service *service.AuthService
}

func NewUserHandler(service *service.AuthService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, apierror.BadRequest("Invalid user id", chi.URLParam(r, "id")))
		return
	}

	var payload model.SetActiveRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.IsActive == nil {
		writeError(w, apierror.BadRequest("is_active is required", "is_active"))
		return
	}

	actor, _ := middleware.UserFromContext(r.Context())
	user, err := h.service.SetActive(r.Context(), actor, userID, *payload.IsActive)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user.Profile())
}

func (h *UserHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]model.RoleSummary, 0, len(roles))
	for i := range roles {
		summaries = append(summaries, roles[i].Summary())
	}

	writeSuccess(w, http.StatusOK, model.RoleList{Roles: summaries})
}
