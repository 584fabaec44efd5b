package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joblink/joblink-web/internal/data"
	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	apperrors "github.com/joblink/joblink-web/internal/errors"
)

// RoleAdmin manages persisted role assignments.
type RoleAdmin interface {
	List(ctx context.Context, role domainauth.Role) ([]data.RoleAssignment, error)
	Assign(ctx context.Context, userID string, role domainauth.Role) error
	Revoke(ctx context.Context, userID string) error
}

// RoleInvalidator drops a cached role after its assignment changes.
type RoleInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// RoleHandlers serves the admin role assignment API.
type RoleHandlers struct {
	Repo   RoleAdmin
	Cache  RoleInvalidator // optional
	Logger *slog.Logger
}

type roleListResponse struct {
	Items []data.RoleAssignment `json:"items"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

// List returns role assignments, optionally filtered by ?role=.
// GET /api/roles.
func (h *RoleHandlers) List(w http.ResponseWriter, r *http.Request) {
	var filter domainauth.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		filter = domainauth.Role(raw)
		if !filter.Valid() {
			WriteAppError(w, apperrors.ValidationField("role", "role must be jobseeker, company or admin"))
			return
		}
	}
	items, err := h.Repo.List(r.Context(), filter)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if items == nil {
		items = []data.RoleAssignment{}
	}
	WriteJSON(w, http.StatusOK, roleListResponse{Items: items})
}

// Assign sets the role of one user.
// PUT /api/roles/{userID}.
func (h *RoleHandlers) Assign(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req assignRoleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	role := domainauth.Role(req.Role)
	if err := h.Repo.Assign(r.Context(), userID, role); err != nil {
		WriteAppError(w, err)
		return
	}
	h.invalidate(r.Context(), userID)
	WriteJSON(w, http.StatusOK, map[string]string{"user_id": userID, "role": string(role)})
}

// Revoke removes the role of one user.
// DELETE /api/roles/{userID}.
func (h *RoleHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.Repo.Revoke(r.Context(), userID); err != nil {
		WriteAppError(w, err)
		return
	}
	h.invalidate(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

// invalidate is best effort; a stale cache entry expires on its own TTL.
func (h *RoleHandlers) invalidate(ctx context.Context, userID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, userID); err != nil && h.Logger != nil {
		h.Logger.WarnContext(ctx, "role cache invalidation failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}
