// internal/auth/manager.go
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

const (
	// APIKeyPrefix marks keys minted by this service
	APIKeyPrefix = "sqa_"

	tokenIssuer = "samarth-qa"
)

// Authentication methods, also used as metric labels
const (
	MethodAPIKey    = "api_key"
	MethodJWT       = "jwt"
	MethodAnonymous = "anonymous"
)

// Principal is the caller a request was authenticated as
type Principal struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Method string `json:"method"`
}

// APIKey represents a configured API key. Only the hash is kept.
type APIKey struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Prefix     string    `json:"prefix"`
	HashedKey  string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// Claims represents JWT claims
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys        []string
	JWTSecret      string
	JWTExpiry      time.Duration
	RateLimit      int
	AllowAnonymous bool
}

// AuthManager validates API keys and bearer tokens and owns the per-client
// rate limiter. An empty JWT secret disables bearer tokens.
type AuthManager struct {
	config  AuthConfig
	apiKeys map[string]*APIKey // hashedKey -> APIKey
	limiter *RateLimiter
	logger  *observability.Logger
	mu      sync.RWMutex
}

// NewAuthManager creates a new authentication manager and registers the
// configured API keys.
func NewAuthManager(config AuthConfig, logger *observability.Logger) *AuthManager {
	if config.JWTExpiry <= 0 {
		config.JWTExpiry = 24 * time.Hour
	}
	if logger == nil {
		logger = observability.NewLogger("auth")
	}

	am := &AuthManager{
		config:  config,
		apiKeys: make(map[string]*APIKey),
		limiter: NewRateLimiter(),
		logger:  logger,
	}

	for i, key := range config.APIKeys {
		am.AddAPIKey(fmt.Sprintf("configured-%d", i+1), key)
	}

	return am
}

// Close stops the rate limiter's cleanup loop
func (am *AuthManager) Close() {
	am.limiter.Stop()
}

// Config returns the effective configuration
func (am *AuthManager) Config() AuthConfig {
	return am.config
}

// TokensEnabled reports whether bearer tokens can be issued and verified
func (am *AuthManager) TokensEnabled() bool {
	return am.config.JWTSecret != ""
}

// AddAPIKey registers a plaintext key under the given name
func (am *AuthManager) AddAPIKey(name, key string) *APIKey {
	am.mu.Lock()
	defer am.mu.Unlock()

	hashed := hashAPIKey(key)
	if existing, ok := am.apiKeys[hashed]; ok {
		return existing
	}

	apiKey := &APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		Prefix:    keyPrefix(key),
		HashedKey: hashed,
		CreatedAt: time.Now(),
	}
	am.apiKeys[hashed] = apiKey
	return apiKey
}

// GenerateAPIKey mints a random key, registers it, and returns the plaintext
// exactly once.
func (am *AuthManager) GenerateAPIKey(name string) (string, *APIKey) {
	key := APIKeyPrefix + generateRandomString(32)
	return key, am.AddAPIKey(name, key)
}

// ValidateAPIKey resolves a plaintext key to its principal
func (am *AuthManager) ValidateAPIKey(key string) (*Principal, error) {
	if key == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hashed := hashAPIKey(key)

	am.mu.Lock()
	defer am.mu.Unlock()

	apiKey, exists := am.apiKeys[hashed]
	if !exists {
		return nil, fmt.Errorf("invalid API key")
	}

	apiKey.LastUsedAt = time.Now()

	return &Principal{ID: apiKey.ID, Name: apiKey.Name, Method: MethodAPIKey}, nil
}

// ListAPIKeys returns the registered keys sorted by name
func (am *AuthManager) ListAPIKeys() []APIKey {
	am.mu.RLock()
	defer am.mu.RUnlock()

	keys := make([]APIKey, 0, len(am.apiKeys))
	for _, k := range am.apiKeys {
		keys = append(keys, *k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys
}

// CreateToken signs an HS256 bearer token for the named client
func (am *AuthManager) CreateToken(name string) (string, time.Time, error) {
	if !am.TokensEnabled() {
		return "", time.Time{}, fmt.Errorf("token signing is disabled: no JWT secret configured")
	}

	now := time.Now()
	expiresAt := now.Add(am.config.JWTExpiry)

	claims := &Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(am.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a bearer token and returns its claims
func (am *AuthManager) ValidateToken(tokenString string) (*Claims, error) {
	if !am.TokensEnabled() {
		return nil, fmt.Errorf("token verification is disabled")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(am.config.JWTSecret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// Allow applies the per-client rate limit. A limit of zero disables it.
func (am *AuthManager) Allow(clientID string) bool {
	if am.config.RateLimit <= 0 {
		return true
	}
	return am.limiter.Allow(clientID, am.config.RateLimit)
}

// RateLimitStats returns the limiter's per-client counters
func (am *AuthManager) RateLimitStats() map[string]interface{} {
	return am.limiter.GetStats()
}

func generateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

// hashAPIKey hashes an API key using SHA256
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func keyPrefix(key string) string {
	if len(key) <= 8 {
		return key[:len(key)/2] + "..."
	}
	return key[:8] + "..."
}
