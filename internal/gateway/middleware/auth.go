package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pos-system/internal/database/models"
	"pos-system/internal/errs"
	"pos-system/internal/utils"
)

const (
	EmployeeIDKey = "employee_id"
	UsernameKey   = "username"
)

// PermissionChecker reports whether an employee holds a permission through
// an active role.
type PermissionChecker interface {
	HasPermission(ctx context.Context, employeeID int64, permission models.Permission) (bool, error)
}

func abortWith(c *gin.Context, status int, kind errs.Kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
		"error":   string(kind),
	})
}

// JWTAuth requires a valid bearer token and stores the employee it names in
// the request context.
func JWTAuth(jwt *utils.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWith(c, http.StatusUnauthorized, errs.KindInvalidCredentials, "Missing bearer token")
			return
		}

		claims, err := jwt.ParseToken(token)
		if err != nil {
			abortWith(c, http.StatusUnauthorized, errs.KindInvalidCredentials, "Invalid or expired token")
			return
		}

		c.Set(EmployeeIDKey, claims.EmployeeID)
		c.Set(UsernameKey, claims.Username)
		c.Next()
	}
}

// RequirePermission lets the request through only if the authenticated
// employee holds permission. Deactivated employees and roles lose access on
// their next request since the check runs against the store every time.
func RequirePermission(checker PermissionChecker, permission models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		employeeID, ok := EmployeeID(c)
		if !ok {
			abortWith(c, http.StatusUnauthorized, errs.KindInvalidCredentials, "Not authenticated")
			return
		}

		allowed, err := checker.HasPermission(c.Request.Context(), employeeID, permission)
		if err != nil {
			logrus.WithError(err).WithField("employee_id", employeeID).Error("Permission check failed")
			abortWith(c, http.StatusInternalServerError, errs.KindInternal, "Permission check failed")
			return
		}
		if !allowed {
			abortWith(c, http.StatusForbidden, "FORBIDDEN", "Missing permission "+string(permission))
			return
		}
		c.Next()
	}
}

// EmployeeID returns the authenticated employee of the request.
func EmployeeID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(EmployeeIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
