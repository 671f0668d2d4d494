package http

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/siweauth/core"
	"github.com/layer-3/siweauth/service"
)

// AuthHandlers contains HTTP handlers for the sign-in endpoints
type AuthHandlers struct {
	authService *service.AuthService
	cfg         RouterConfig
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, cfg RouterConfig) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		cfg:         cfg,
	}
}

type prepareRequest struct {
	Address string `json:"address"`
	ChainID uint64 `json:"chain_id"`
	Nonce   string `json:"nonce"`
}

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Root answers liveness checks
func (h *AuthHandlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Health pings every configured store
func (h *AuthHandlers) Health(c *gin.Context) {
	names := make([]string, 0, len(h.cfg.HealthChecks))
	for name := range h.cfg.HealthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	failing := gin.H{}
	for _, name := range names {
		if err := h.cfg.HealthChecks[name](c.Request.Context()); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failing": failing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Nonce issues a fresh nonce
func (h *AuthHandlers) Nonce(c *gin.Context) {
	nonce, err := h.authService.Nonce(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

// Prepare renders the message to sign
func (h *AuthHandlers) Prepare(c *gin.Context) {
	var req prepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "code": "bad_request"})
		return
	}

	message, err := h.authService.Prepare(c.Request.Context(), req.Address, req.ChainID, req.Nonce)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// Verify checks the signed message and sets the session cookie
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "code": "bad_request"})
		return
	}

	result, err := h.authService.Verify(c.Request.Context(), req.Message, req.Signature)
	if err != nil {
		abortWithError(c, err)
		return
	}

	maxAge := int(h.authService.Sessions().CookieMaxAge().Seconds())
	h.setCookie(c, result.Token, maxAge)
	c.JSON(http.StatusOK, gin.H{
		"address": result.Address,
		"is_new":  result.IsNew,
	})
}

// Me returns the signed-in user
func (h *AuthHandlers) Me(c *gin.Context) {
	user, err := h.authService.Me(c.Request.Context(), c.GetString(tokenKey))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":      user.Address,
		"display_name": user.DisplayName,
	})
}

// Logout revokes the session and clears the cookie. It succeeds without
// a session too.
func (h *AuthHandlers) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), credential(c, h.cfg.CookieName)); err != nil {
		abortWithError(c, err)
		return
	}
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandlers) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, value, maxAge, "/", "", h.cfg.CookieSecure, true)
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNonceInvalid),
		errors.Is(err, core.ErrMessageMalformed),
		errors.Is(err, core.ErrInvalidAddress),
		errors.Is(err, core.ErrChainNotAllowed),
		errors.Is(err, core.ErrSignatureInvalid):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrAddressMismatch),
		errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotRegistered):
		return http.StatusForbidden
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var messages = map[string]string{
	"nonce_invalid":     "Nonce is unknown, expired or already used",
	"message_malformed": "Message does not match the expected format",
	"invalid_address":   "Invalid Ethereum address",
	"chain_not_allowed": "Chain is not allowed",
	"signature_invalid": "Invalid signature",
	"address_mismatch":  "Signature does not match address",
	"not_registered":    "Account is not registered",
	"not_authenticated": "Not authenticated",
	"store_unavailable": "Service temporarily unavailable",
	"internal":          "Internal error",
}

func abortWithError(c *gin.Context, err error) {
	code := core.Code(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": messages[code], "code": code})
}
