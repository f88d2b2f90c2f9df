// internal/auth/handlers.go
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seanankenbruck/samarth-qa/internal/errors"
)

// AuthHandlers provides HTTP handlers for authentication endpoints
type AuthHandlers struct {
	authManager *AuthManager
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authManager *AuthManager) *AuthHandlers {
	return &AuthHandlers{
		authManager: authManager,
	}
}

// SetupRoutes sets up authentication routes
func (ah *AuthHandlers) SetupRoutes(r *gin.RouterGroup) {
	r.GET("/auth/status", ah.GetAuthStatus)
	r.POST("/auth/token", ah.IssueToken)
	r.GET("/auth/me", ah.authManager.Middleware(), ah.GetCurrentPrincipal)
	r.GET("/auth/rate-limits", ah.authManager.Middleware(), ah.GetRateLimitStats)
}

// TokenRequest names the client a token is issued for
type TokenRequest struct {
	Name string `json:"name"`
}

// TokenResponse represents an issued bearer token
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Name      string `json:"name"`
}

// IssueToken exchanges a valid API key for a bearer token
func (ah *AuthHandlers) IssueToken(c *gin.Context) {
	if !ah.authManager.TokensEnabled() {
		abortWithError(c, http.StatusNotFound, errors.New(errors.ErrCodeTokenCreation, "Bearer tokens are disabled").
			WithDetails("No JWT secret is configured"))
		return
	}

	principal, err := ah.authManager.ValidateAPIKey(c.GetHeader("X-API-Key"))
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, errors.NewInvalidCredentialsError())
		return
	}

	var req TokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, errors.NewInvalidInputError("request body", err.Error()))
			return
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = principal.Name
	}

	token, expiresAt, err := ah.authManager.CreateToken(name)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, errors.NewTokenCreationError(err))
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Name:      name,
	})
}

// GetCurrentPrincipal returns the authenticated caller
func (ah *AuthHandlers) GetCurrentPrincipal(c *gin.Context) {
	principal, exists := GetPrincipal(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, errors.NewNotAuthenticatedError())
		return
	}

	c.JSON(http.StatusOK, principal)
}

// GetAuthStatus reports which authentication methods are enabled
func (ah *AuthHandlers) GetAuthStatus(c *gin.Context) {
	cfg := ah.authManager.Config()

	methods := []string{}
	if len(ah.authManager.ListAPIKeys()) > 0 {
		methods = append(methods, MethodAPIKey)
	}
	if ah.authManager.TokensEnabled() {
		methods = append(methods, MethodJWT)
	}

	c.JSON(http.StatusOK, gin.H{
		"allow_anonymous": cfg.AllowAnonymous,
		"methods":         methods,
		"rate_limit":      cfg.RateLimit,
		"token_expiry":    cfg.JWTExpiry.String(),
	})
}

// GetRateLimitStats returns the limiter's per-client counters
func (ah *AuthHandlers) GetRateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, ah.authManager.RateLimitStats())
}
