package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ngenohkevin/fbrs/internal/cache"
	"github.com/ngenohkevin/fbrs/internal/identity"
)

const (
	issuer = "fbrs"

	roleAdmin = "admin"
	roleUser  = "user"

	authMethodJWT      = "jwt"
	authMethodIdentity = "identity_token"
)

var errInvalidToken = errors.New("invalid token")

// TokenVerifier checks identity tokens and group membership
type TokenVerifier interface {
	TokenExists(ctx context.Context, username, token string) (*identity.Token, bool, error)
	HasToken(ctx context.Context, username, id string) (bool, error)
	IsAdmin(ctx context.Context, username string) (bool, error)
}

// JWTClaims represents the claims in a JWT token
type JWTClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// AuthService issues JWTs and verifies both JWTs and identity tokens
type AuthService struct {
	jwtSecret []byte
	verifier  TokenVerifier
	verified  *cache.Cache[string]
}

// NewAuthService creates a new auth service. verifier may be nil, in
// which case only JWTs are accepted.
func NewAuthService(jwtSecret string, verifier TokenVerifier, cacheTTL time.Duration) *AuthService {
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		verifier:  verifier,
		verified:  cache.New[string](cacheTTL),
	}
}

// Close releases the verification cache
func (a *AuthService) Close() {
	a.verified.Close()
}

// GenerateToken generates a new JWT token for subject
func (a *AuthService) GenerateToken(subject, role string, duration time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(duration)

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateToken validates a JWT token
func (a *AuthService) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.jwtSecret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errInvalidToken
}

// VerifyIdentity checks a username/token pair against the store.
// Successful checks cache the matching token ID so repeated requests skip
// bcrypt; a cached ID is re-checked on every use, so revoking the token in
// the store takes effect immediately.
func (a *AuthService) VerifyIdentity(ctx context.Context, username, token string) (bool, error) {
	if a.verifier == nil {
		return false, nil
	}

	key := cache.TokenKey(username, token)
	if id, found := a.verified.Get(key); found {
		ok, err := a.verifier.HasToken(ctx, username, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		a.verified.Delete(key)
		return false, nil
	}

	t, ok, err := a.verifier.TokenExists(ctx, username, token)
	if errors.Is(err, identity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ok {
		a.verified.Set(key, t.ID)
	}
	return ok, nil
}

// RoleOf returns the JWT role for username
func (a *AuthService) RoleOf(ctx context.Context, username string) (string, error) {
	if a.verifier == nil {
		return roleUser, nil
	}
	admin, err := a.verifier.IsAdmin(ctx, username)
	if err != nil {
		return "", err
	}
	if admin {
		return roleAdmin, nil
	}
	return roleUser, nil
}

// Authenticate accepts either "username:token" identity credentials or a
// JWT and returns the auth method and subject
func (a *AuthService) Authenticate(ctx context.Context, raw string) (method, subject string, err error) {
	if username, token, ok := strings.Cut(raw, ":"); ok {
		valid, err := a.VerifyIdentity(ctx, username, token)
		if err != nil {
			return "", "", err
		}
		if !valid {
			return "", "", errInvalidToken
		}
		return authMethodIdentity, username, nil
	}

	claims, err := a.ValidateToken(raw)
	if err != nil {
		return "", "", err
	}
	return authMethodJWT, claims.Subject, nil
}

// ExtractToken extracts the token from the Authorization header
func ExtractToken(c *gin.Context) string {
	// Check Authorization header
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		// Bearer token
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		// Raw token
		return authHeader
	}

	// Check query parameter
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}
