package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"ridepool/internal/domain"
)

// Principal is the identity resolved from a bearer credential.
type Principal struct {
	UserID   string
	Email    string
	UserType domain.UserType
}

const principalKey = "principal"

var errBadToken = errors.New("invalid token")

// RequireAuth resolves the Authorization bearer token to a Principal and
// stores it in the request context. Any failure is an unauthorized
// rejection; there is no guest identity.
func RequireAuth(jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)

	return func(c *gin.Context) {
		principal, err := resolve(c.GetHeader("Authorization"), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func resolve(authHeader string, secret []byte) (*Principal, error) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errBadToken
	}

	raw := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadToken
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errBadToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errBadToken
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, errBadToken
	}

	email, _ := claims["email"].(string)
	userType, _ := claims["user_type"].(string)

	return &Principal{
		UserID:   userID,
		Email:    email,
		UserType: domain.UserType(userType),
	}, nil
}

// PrincipalFrom extracts the authenticated principal set by RequireAuth.
func PrincipalFrom(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	principal, ok := v.(*Principal)
	return principal, ok
}
