package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/labshare/internal/auth"
	"github.com/geocoder89/labshare/internal/domain/user"
	"github.com/geocoder89/labshare/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
	Create(ctx context.Context, nu user.NewUser) (user.User, error)
}

type RoleResolver interface {
	RoleOf(ctx context.Context, userID int64) (string, error)
}

type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

type AuthHandler struct {
	users  UserStore
	roles  RoleResolver
	tokens *auth.Manager
	hasher PasswordHasher
	errs   ErrorMapper
}

func NewAuthHandler(users UserStore, roles RoleResolver, tokens *auth.Manager, hasher PasswordHasher, errs ErrorMapper) *AuthHandler {
	return &AuthHandler{
		users:  users,
		roles:  roles,
		tokens: tokens,
		hasher: hasher,
		errs:   errs,
	}
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      user.Public `json:"user"`
}

func newSessionResponse(s auth.Session) sessionResponse {
	return sessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      s.User.Public(s.Role),
	}
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.users.Create(cctx, user.NewUser{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Bio:          req.Bio,
		CreatedVia:   "register",
	})
	if err != nil {
		h.errs.Respond(ctx, err, "Could not create user")
		return
	}

	// the users trigger assigns the default membership; read it back
	role, err := h.roles.RoleOf(cctx, u.ID)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not resolve role")
		return
	}

	sess, err := h.tokens.NewSession(u, role)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not issue token")
		return
	}

	RespondOK(ctx, http.StatusCreated, "User registered", newSessionResponse(sess))
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	found, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		h.errs.Respond(ctx, err, "Could not log in")
		return
	}
	if err != nil || !h.hasher.Verify(req.Password, found.PasswordHash) {
		RespondUnauthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	role, err := h.roles.RoleOf(cctx, found.ID)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not resolve role")
		return
	}

	sess, err := h.tokens.NewSession(found, role)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not issue token")
		return
	}

	RespondOK(ctx, http.StatusOK, "Login successful", newSessionResponse(sess))
}

// Refresh accepts an expired bearer token. The new token carries the role
// read from the database now, not the one in the old token.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, ok := middlewares.BearerToken(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthenticated", "Missing or invalid Authorization header")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	sess, err := h.tokens.Refresh(cctx, raw, h.users, h.roles)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			RespondUnauthorized(ctx, "invalid_token", "Invalid token")
			return
		}
		h.errs.Respond(ctx, err, "Could not refresh token")
		return
	}

	RespondOK(ctx, http.StatusOK, "Token refreshed", newSessionResponse(sess))
}

// Verify runs behind RequireToken and returns the caller.
func (h *AuthHandler) Verify(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthenticated", "Missing identity context")
		return
	}
	role, _ := middlewares.RoleFromContext(ctx)

	u, err := h.users.GetByID(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnauthorized(ctx, "invalid_token", "User no longer exists")
			return
		}
		h.errs.Respond(ctx, err, "Could not verify token")
		return
	}

	RespondOK(ctx, http.StatusOK, "Token is valid", gin.H{"user": u.Public(role)})
}

// Logout is an acknowledgement; tokens are discarded client-side.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	RespondOK(ctx, http.StatusOK, "Logged out", nil)
}
