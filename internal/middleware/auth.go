package middleware

import (
	"net/http"
	"strings"

	"gymdesk/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ClaimsKey = "claims"
	TokenKey  = "bearer_token"
)

// JWTClaims are the claims the backend puts in operator tokens.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Rol      string `json:"rol"`
	jwt.RegisteredClaims
}

// JWTAuth validates the Bearer token on every protected route. The raw token
// is kept in the context so calls to the backend run as the same operator.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.WithCode("unauthenticated", "Autenticacion requerida"))
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})

		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.WithCode("unauthenticated", "Token invalido o expirado"))
			return
		}
		if claims.UserID == "" {
			// older tokens only carry the subject
			claims.UserID = claims.Subject
		}
		if claims.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.WithCode("unauthenticated", "Token sin usuario"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(TokenKey, tokenStr)
		c.Next()
	}
}

// GetClaims returns the typed claims set by JWTAuth, or nil.
func GetClaims(c *gin.Context) *JWTClaims {
	claims, _ := c.Get(ClaimsKey)
	typed, _ := claims.(*JWTClaims)
	return typed
}

// GetToken returns the raw bearer token set by JWTAuth.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
