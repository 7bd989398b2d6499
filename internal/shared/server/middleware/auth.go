package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/shared/auth"
	"intake-backend/internal/shared/server/respond"
)

const (
	userIDKey = "userId"
	roleKey   = "role"
	claimsKey = "claims"
)

// Auth validates the bearer JWT and stores the caller's identity and role in
// context. In dev, X-Dev-Role, X-Dev-User and X-Dev-Cases stand in for a token.
func Auth(env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		if path == "/api/v1/health" || path == "/metrics" {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" && env == "dev" {
			if role := strings.TrimSpace(c.GetHeader("X-Dev-Role")); role == auth.RoleStaff || role == auth.RoleClient {
				user := strings.TrimSpace(c.GetHeader("X-Dev-User"))
				if user == "" {
					user = "dev:" + role
				}
				var cases []string
				for _, id := range strings.Split(c.GetHeader("X-Dev-Cases"), ",") {
					if id = strings.TrimSpace(id); id != "" {
						cases = append(cases, id)
					}
				}
				setIdentity(c, auth.Claims{Sub: user, Role: role, Cases: cases})
				c.Next()
				return
			}
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		claims, err := auth.VerifyJWT(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

func setIdentity(c *gin.Context, claims auth.Claims) {
	c.Set(userIDKey, claims.Sub)
	c.Set(roleKey, claims.Role)
	c.Set(claimsKey, claims)
}

// RequireStaff rejects callers whose role is not staff.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(roleKey) != auth.RoleStaff {
			respond.Error(c, http.StatusForbidden, "forbidden", "staff access required", nil)
			return
		}
		c.Next()
	}
}

// RequireCaseAccess rejects clients acting on a :caseId outside their token.
// Routes without a caseId param pass through.
func RequireCaseAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("caseId")
		if caseID == "" || IsStaff(c) {
			c.Next()
			return
		}
		val, ok := c.Get(claimsKey)
		claims, _ := val.(auth.Claims)
		if !ok || !claims.CanAccessCase(caseID) {
			respond.Error(c, http.StatusForbidden, "forbidden", "no access to case", nil)
			return
		}
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(userIDKey)
}

// IsStaff reports whether the caller authenticated with the staff role.
func IsStaff(c *gin.Context) bool {
	return c != nil && c.GetString(roleKey) == auth.RoleStaff
}

// CanAccessCase reports whether the caller may act on caseID. Handlers use it
// for routes that learn the case only after loading a record.
func CanAccessCase(c *gin.Context, caseID string) bool {
	if IsStaff(c) {
		return true
	}
	val, ok := c.Get(claimsKey)
	claims, _ := val.(auth.Claims)
	return ok && claims.CanAccessCase(caseID)
}

// ClaimsFromContext returns the verified claims of the caller.
func ClaimsFromContext(c *gin.Context) (auth.Claims, bool) {
	if c == nil {
		return auth.Claims{}, false
	}
	val, ok := c.Get(claimsKey)
	claims, ok2 := val.(auth.Claims)
	return claims, ok && ok2
}
