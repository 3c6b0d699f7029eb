package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/homequest/support-service/internal/domain"
	apperrors "github.com/homequest/support-service/pkg/util"
)

// RequireCustomer ensures a customer principal is authenticated.
func RequireCustomer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeCustomer {
			return apperrors.NewForbidden("customer required")
		}
		return c.Next()
	}
}

// RequireEmployee ensures an employee principal is authenticated.
func RequireEmployee() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeEmployee {
			return apperrors.NewForbidden("employee required")
		}
		return c.Next()
	}
}

// RequireAnyPrincipal ensures the caller is authenticated.
func RequireAnyPrincipal() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
