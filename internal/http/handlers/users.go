package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/labshare/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type UserProfiles interface {
	GetByID(ctx context.Context, id int64) (user.User, error)
	UpdateProfile(ctx context.Context, id int64, req user.UpdateProfileRequest) (user.User, error)
	Delete(ctx context.Context, id int64) error
}

// RoleCache drops a user's cached role once the user is gone.
type RoleCache interface {
	Forget(ctx context.Context, userID int64)
}

type UsersHandler struct {
	users UserProfiles
	roles RoleCache
	errs  ErrorMapper
}

// NewUsersHandler wires the profile endpoints. roles may be nil.
func NewUsersHandler(users UserProfiles, roles RoleCache, errs ErrorMapper) *UsersHandler {
	return &UsersHandler{users: users, roles: roles, errs: errs}
}

func (h *UsersHandler) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	u, err := h.users.GetByID(ctx.Request.Context(), id)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not load user")
		return
	}
	RespondOK(ctx, http.StatusOK, "User", u)
}

func (h *UsersHandler) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req user.UpdateProfileRequest
	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.UpdateProfile(ctx.Request.Context(), id, req)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not update user")
		return
	}
	RespondOK(ctx, http.StatusOK, "User updated", u)
}

func (h *UsersHandler) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := h.users.Delete(ctx.Request.Context(), id); err != nil {
		h.errs.Respond(ctx, err, "Could not delete user")
		return
	}
	if h.roles != nil {
		h.roles.Forget(ctx.Request.Context(), id)
	}
	ctx.Status(http.StatusNoContent)
}
