package auth

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin         = "admin"
	RoleLabTechnician = "lab-technician"
	RolePhysician     = "physician"
)

// ReadRoles may view concepts, worksheets and import sessions; WriteRoles
// may also upload files and apply results.
var (
	ReadRoles  = []string{RoleAdmin, RoleLabTechnician, RolePhysician}
	WriteRoles = []string{RoleAdmin, RoleLabTechnician}
)

// RequireRole passes users holding any of roles. Admin passes everywhere.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			if slices.Contains(userRoles, RoleAdmin) {
				return next(c)
			}
			for _, required := range roles {
				if slices.Contains(userRoles, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
