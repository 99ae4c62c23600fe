package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"bringitback-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const UserIDKey = "userID"

// Authorizer answers role questions for an authenticated user.
type Authorizer interface {
	HasRole(userID, role string) bool
}

// Auth validates an HS256 bearer token and stores its subject as the user id.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, errutil.Unauthorized("authorization header required", nil))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, errutil.Unauthorized("invalid authorization header format", nil))
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			abort(c, errutil.Unauthorized("invalid or expired token", err))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, errutil.Unauthorized("invalid token", nil))
			return
		}

		userID, err := subject(claims)
		if err != nil {
			abort(c, errutil.Unauthorized("invalid token", err))
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// RequireRole rejects users without the role. It must run after Auth.
func RequireRole(authz Authorizer, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authz.HasRole(UserID(c), role) {
			abort(c, errutil.Forbidden("requires role "+role, nil, errutil.WithReason("FORBIDDEN")))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, empty when the route is public.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func subject(claims jwt.MapClaims) (string, error) {
	switch sub := claims["sub"].(type) {
	case string:
		if sub == "" {
			return "", fmt.Errorf("empty sub claim")
		}
		return sub, nil
	case float64:
		return strconv.FormatInt(int64(sub), 10), nil
	default:
		return "", fmt.Errorf("missing sub claim")
	}
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
