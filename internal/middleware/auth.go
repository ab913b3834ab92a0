package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ClaimsKey = "claims"
	UserIDKey = "userId"
	EmailKey  = "email"
	RoleKey   = "role"
)

// AuthGuard requires a valid bearer token. When roles are given the token's
// role claim must be one of them.
func AuthGuard(secret string, allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "No token, authorization denied"})
			return
		}

		claims, ok := parseBearer(raw, secret)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is not valid"})
			return
		}

		role, _ := claims[RoleKey].(string)
		if len(allowedRoles) > 0 {
			match := false
			for _, r := range allowedRoles {
				if role == r {
					match = true
					break
				}
			}
			if !match {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Access denied"})
				return
			}
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalIdentity records the caller's identity when a valid token is sent
// and lets anonymous requests through.
func OptionalIdentity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := strings.TrimSpace(c.GetHeader("Authorization")); raw != "" {
			if claims, ok := parseBearer(raw, secret); ok {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

// Email returns the email claim of the authenticated caller, if any.
func Email(c *gin.Context) string {
	return c.GetString(EmailKey)
}

func parseBearer(raw, secret string) (jwt.MapClaims, bool) {
	parts := strings.Split(raw, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, false
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	return claims, ok
}

func setIdentity(c *gin.Context, claims jwt.MapClaims) {
	c.Set(ClaimsKey, claims)
	for _, key := range []string{UserIDKey, EmailKey, RoleKey} {
		if v, ok := claims[key].(string); ok {
			c.Set(key, v)
		}
	}
}
