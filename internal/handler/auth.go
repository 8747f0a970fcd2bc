package handler // handlers translate HTTP requests into service and repository calls

import (
	"context"  // context carries deadlines for database operations
	"net/http" // HTTP status codes
	"strings"  // string helpers for role normalization
	"time"     // timeouts for request-scoped contexts

	"github.com/labstack/echo/v4" // Echo framework types

	"github.com/truckmitra/freight-broker/internal/config"     // runtime configuration
	"github.com/truckmitra/freight-broker/internal/repository" // data access layer
	"github.com/truckmitra/freight-broker/internal/utils"      // token helpers
)

// AuthHandler bundles the dependencies required by the authentication
// endpoints: the user repository, the refresh-token repository and the
// application configuration (for JWT secret and TTL values).
type AuthHandler struct {
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Cfg    config.Config
}

// NewAuthHandler constructs an AuthHandler with its dependencies.
func NewAuthHandler(u *repository.UserRepo, t *repository.TokenRepo, cfg config.Config) *AuthHandler {
	return &AuthHandler{Users: u, Tokens: t, Cfg: cfg}
}

// registerReq models the JSON body of the register endpoint. The role is
// optional; when present it must be one of the broker roles.
type registerReq struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"` // ADMIN | CARRIER | SHIPPER (optional)
}

// loginReq models the JSON body of the login endpoint.
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshReq models the JSON body of the refresh endpoints.
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenPart is the serialized shape of one issued token.
type tokenPart struct {
	Token string `json:"token"`
	Exp   int64  `json:"exp"` // unix seconds
}

// userPart is the public shape of a user returned by auth endpoints.
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// authResp is the combined response of register/login/refresh.
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// normalizeRole upper-cases and validates the requested role. ADMIN cannot
// be self-assigned at registration; unknown or empty values default to
// SHIPPER.
func normalizeRole(role string) string {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case "CARRIER":
		return "CARRIER"
	case "SHIPPER", "":
		return "SHIPPER"
	default:
		return "SHIPPER"
	}
}

// Register creates a new user account and immediately issues an access and
// refresh token pair so the client is logged in after signup.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}
	role := normalizeRole(req.Role)

	// Scope database work to a short timeout so a stuck connection cannot
	// hold the request open indefinitely.
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Users.Create(ctx, req.Email, req.Phone, req.Password, role, h.Cfg.BcryptCost)
	if err != nil {
		if err == repository.ErrEmailExists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create user"})
	}

	resp, err := h.issueTokens(ctx, id, strings.ToLower(strings.TrimSpace(req.Email)), req.Phone, role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue tokens"})
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and issues a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		// Do not reveal whether the email exists.
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	resp, err := h.issueTokens(ctx, u.ID, u.Email, u.Phone, u.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue tokens"})
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token: the presented token is validated and
// revoked, then a brand-new pair is issued. Reuse of a rotated token fails
// validation because the old hash is already revoked.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hash := utils.HashRefreshRaw(req.RefreshToken)
	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}

	// Revoke the presented token before issuing the replacement.
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not rotate token"})
	}
	resp, err := h.issueTokens(ctx, u.ID, u.Email, u.Phone, u.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue tokens"})
	}
	return c.JSON(http.StatusOK, resp)
}

// RefreshAccess issues a new access token only, without rotating the
// refresh token. Clients that poll frequently use this cheaper path.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, utils.HashRefreshRaw(req.RefreshToken))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}

	at, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: at.Token, Exp: at.Exp.Unix()},
	})
}

// Logout revokes refresh tokens. With a refresh_token in the body only that
// token is revoked; with a valid bearer access token and no body every
// active session of the user is revoked.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req) // body is optional

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if req.RefreshToken != "" {
		if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(req.RefreshToken)); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not revoke token"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	// Fall back to the authenticated user set by the JWT middleware.
	if uid, ok := currentUserIDClaim(c); ok {
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not revoke sessions"})
		}
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token or bearer token required"})
}

// Me returns the identity claims of the current access token.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": c.Get("user_id"),
		"role":    c.Get("role"),
	})
}

// issueTokens creates and persists a new access/refresh pair for a user.
func (h *AuthHandler) issueTokens(ctx context.Context, id uint64, email, phone, role string) (authResp, error) {
	at, err := utils.NewAccessToken(h.Cfg.JWTSecret, id, role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	rt, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, id, utils.HashRefreshRaw(rt.Raw), rt.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    userPart{ID: id, Email: email, Phone: phone, Role: role},
		Access:  tokenPart{Token: at.Token, Exp: at.Exp.Unix()},
		Refresh: tokenPart{Token: rt.Raw, Exp: rt.Exp.Unix()},
	}, nil
}

// currentUserIDClaim extracts the numeric user id that JWTAuth stored in the
// context. JWT numeric claims decode as float64.
func currentUserIDClaim(c echo.Context) (uint64, bool) {
	switch v := c.Get("user_id").(type) {
	case float64:
		return uint64(v), true
	case uint64:
		return v, true
	case int64:
		return uint64(v), true
	}
	return 0, false
}
