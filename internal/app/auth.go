package app

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const hostIDKey = "host_id"

// AuthMiddleware accepts a Bearer JWT signed with secret (HS256, subject =
// host id) or one of the static tokens. Static tokens act for any host.
func AuthMiddleware(secret string, staticTokens []string) gin.HandlerFunc {
	key := []byte(strings.TrimSpace(secret))
	tokens := make(map[string]struct{}, len(staticTokens))
	for _, t := range staticTokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens[t] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		// JWT path
		if len(key) > 0 {
			var claims jwt.RegisteredClaims
			_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenMalformed
				}
				return key, nil
			}, jwt.WithLeeway(5*time.Second))
			// OAuth2 state is a signed JWT too; it must not open the API.
			if err == nil && claims.Subject != "" && !slices.Contains(claims.Audience, stateAudience) {
				c.Set(hostIDKey, claims.Subject)
				c.Next()
				return
			}
		}

		// static tokens
		if _, ok := tokens[tokenStr]; ok {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

// hostFromRequest resolves which host the request acts for. A JWT caller may
// only act for itself; a static-token caller must name the host. On failure
// the response is already written.
func (a *App) hostFromRequest(c *gin.Context, requested string) (string, bool) {
	if sub := c.GetString(hostIDKey); sub != "" {
		if requested != "" && requested != sub {
			c.JSON(http.StatusForbidden, gin.H{"error": ErrForbidden.Error()})
			return "", false
		}
		return sub, true
	}
	if requested == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return "", false
	}
	return requested, true
}
