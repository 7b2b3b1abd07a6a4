package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/bus-charter-booking/internal/config"
	"github.com/iliyamo/bus-charter-booking/internal/middleware"
	"github.com/iliyamo/bus-charter-booking/internal/model"
	"github.com/iliyamo/bus-charter-booking/internal/repository"
	"github.com/iliyamo/bus-charter-booking/internal/utils"
)

// UserStore is the part of repository.UserRepo used for login.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// TokenStore is the part of repository.TokenRepo used for sessions.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for admin auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens TokenStore
	Log    *zap.Logger
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Log: log}
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// issue creates a fresh access/refresh pair and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u *model.User) (*authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, time.Duration(h.Cfg.AccessTTLMin)*time.Minute)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.NewRefreshToken(time.Duration(h.Cfg.RefreshTTLDays) * 24 * time.Hour)
	if err != nil {
		return nil, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, err
	}
	return &authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// Login verifies an administrator's credentials and returns a token pair.
// Unknown, inactive and non-admin accounts all look the same.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if msg, good := bind(c, &req); !good {
		return failed(c, http.StatusBadRequest, msg)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failed(c, http.StatusUnauthorized, "invalid credentials")
		}
		h.Log.Error("login lookup failed", zap.Error(err))
		return failed(c, http.StatusInternalServerError, "operation failed")
	}
	if !u.IsActive || u.Role != model.RoleAdmin || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		h.Log.Warn("login rejected", zap.String("email", email), zap.String("remote_ip", c.RealIP()))
		return failed(c, http.StatusUnauthorized, "invalid credentials")
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		h.Log.Error("issue tokens failed", zap.Uint64("user_id", u.ID), zap.Error(err))
		return failed(c, http.StatusInternalServerError, "operation failed")
	}
	h.Log.Info("admin logged in", zap.Uint64("user_id", u.ID))
	return ok(c, http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return failed(c, http.StatusBadRequest, "refresh_token is required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash, time.Now().UTC())
	if err != nil {
		return failed(c, http.StatusUnauthorized, "invalid refresh token")
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		h.Log.Error("revoke refresh failed", zap.Error(err))
		return failed(c, http.StatusInternalServerError, "operation failed")
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return failed(c, http.StatusUnauthorized, "invalid refresh token")
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		h.Log.Error("issue tokens failed", zap.Uint64("user_id", u.ID), zap.Error(err))
		return failed(c, http.StatusInternalServerError, "operation failed")
	}
	return ok(c, http.StatusOK, resp)
}

// Logout revokes the refresh token in the body, or every refresh token of
// the bearer when no body token is given.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash, time.Now().UTC()); err != nil {
			return failed(c, http.StatusUnauthorized, "invalid refresh token")
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			h.Log.Error("logout failed", zap.Error(err))
			return failed(c, http.StatusInternalServerError, "operation failed")
		}
		return c.NoContent(http.StatusNoContent)
	}

	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return failed(c, http.StatusBadRequest, "provide Authorization header or refresh_token")
	}
	claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return failed(c, http.StatusUnauthorized, "invalid token")
	}
	uid, _ := claims.UserID()
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		h.Log.Error("logout failed", zap.Uint64("user_id", uid), zap.Error(err))
		return failed(c, http.StatusInternalServerError, "operation failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Me echoes the authenticated identity.
func (h *AuthHandler) Me(c echo.Context) error {
	id, _ := middleware.UserID(c)
	return ok(c, http.StatusOK, echo.Map{"user_id": id, "role": middleware.Role(c)})
}
