package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/event-booking-saga/pkg/response"
)

const (
	// Headers set by the API gateway after it validated the caller's token
	UserIDHeader    = "X-User-ID"
	UserEmailHeader = "X-User-Email"

	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"
)

// UserClaims is the access token payload issued by the auth service
type UserClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IdentityConfig configures caller identification
type IdentityConfig struct {
	// JWTSecret validates HS256 bearer tokens on direct calls. Empty disables bearer auth.
	JWTSecret string
	Issuer    string
}

// Identity resolves the caller from gateway headers or a bearer token.
// Requests without an identity are rejected with 401.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); userID != "" {
			setIdentity(c, userID, c.GetHeader(UserEmailHeader))
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		const bearerPrefix = "Bearer "
		if cfg.JWTSecret == "" || !strings.HasPrefix(authHeader, bearerPrefix) {
			response.Unauthorized(c, "Authentication required")
			c.Abort()
			return
		}

		claims, err := ParseUserToken(authHeader[len(bearerPrefix):], cfg)
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		setIdentity(c, claims.UserID, claims.Email)
		c.Next()
	}
}

// ParseUserToken validates an HS256 token and returns its claims
func ParseUserToken(tokenString string, cfg IdentityConfig) (*UserClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token has no user id")
	}
	return claims, nil
}

func setIdentity(c *gin.Context, userID, email string) {
	c.Set(ContextKeyUserID, userID)
	if email != "" {
		c.Set(ContextKeyEmail, email)
	}
}

// GetUserID returns the caller's user id
func GetUserID(c *gin.Context) (string, bool) {
	return c.GetString(ContextKeyUserID), c.GetString(ContextKeyUserID) != ""
}

// GetUserEmail returns the caller's email when known
func GetUserEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

// InternalSecretHeader authenticates service-to-service calls
const InternalSecretHeader = "X-Internal-Secret"

// InternalSecret rejects requests that do not carry the shared internal secret
func InternalSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || subtle.ConstantTimeCompare([]byte(c.GetHeader(InternalSecretHeader)), []byte(secret)) != 1 {
			response.Error(c, http.StatusUnauthorized, "Invalid internal credentials")
			c.Abort()
			return
		}
		c.Next()
	}
}
