// internal/auth/middleware.go
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seanankenbruck/samarth-qa/internal/errors"
	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

const (
	principalKey = "principal"
	clientIDKey  = "client_id"
)

// Middleware returns a Gin middleware for authentication. Presented
// credentials are always checked; requests without any pass only when
// anonymous access is allowed.
func (am *AuthManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, method, err := am.authenticateRequest(c)
		if method != "" {
			observability.RecordAuthMetrics(method, err == nil)
		}

		switch {
		case err != nil:
			am.logger.Warn(c.Request.Context(), "Authentication failed", map[string]interface{}{
				"method": method,
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
			})
			abortWithError(c, http.StatusUnauthorized, errors.NewInvalidCredentialsError())
			return
		case principal == nil && !am.config.AllowAnonymous:
			abortWithError(c, http.StatusUnauthorized, errors.NewNotAuthenticatedError())
			return
		case principal == nil:
			principal = &Principal{ID: "ip:" + c.ClientIP(), Name: "anonymous", Method: MethodAnonymous}
		}

		clientID := clientKey(principal)
		if !am.Allow(clientID) {
			abortWithError(c, http.StatusTooManyRequests, errors.NewRateLimitedError(am.config.RateLimit))
			return
		}

		c.Set(principalKey, principal)
		c.Set(clientIDKey, clientID)
		if principal.Method != MethodAnonymous {
			ctx := observability.WithUserID(c.Request.Context(), principal.Name)
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()
	}
}

// authenticateRequest tries a bearer token, then an API key. It returns the
// method that was attempted, or "" when no credentials were presented.
func (am *AuthManager) authenticateRequest(c *gin.Context) (*Principal, string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return nil, MethodJWT, errMalformedAuthorization
		}

		claims, err := am.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, MethodJWT, err
		}
		return &Principal{ID: claims.Subject, Name: claims.Name, Method: MethodJWT}, MethodJWT, nil
	}

	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		principal, err := am.ValidateAPIKey(apiKey)
		return principal, MethodAPIKey, err
	}

	return nil, "", nil
}

var errMalformedAuthorization = errors.New(errors.ErrCodeInvalidCredentials, "malformed Authorization header")

func clientKey(p *Principal) string {
	switch p.Method {
	case MethodAPIKey:
		return "key:" + p.ID
	case MethodJWT:
		return "token:" + p.Name
	default:
		return p.ID
	}
}

// abortWithError writes the same error envelope the query endpoints use
func abortWithError(c *gin.Context, status int, err *errors.EnhancedError) {
	body := gin.H{
		"code":    err.Code,
		"message": err.Message,
	}
	if err.Details != "" {
		body["details"] = err.Details
	}
	if err.Suggestion != "" {
		body["suggestion"] = err.Suggestion
	}
	c.AbortWithStatusJSON(status, gin.H{
		"detail": err.Detail(),
		"error":  body,
	})
}

// GetPrincipal returns the authenticated caller from context
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}

	principal, ok := value.(*Principal)
	return principal, ok
}

// GetClientID returns the rate-limit key of the current caller
func GetClientID(c *gin.Context) (string, bool) {
	value, exists := c.Get(clientIDKey)
	if !exists {
		return "", false
	}

	id, ok := value.(string)
	return id, ok
}
