package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/homequest/support-service/internal/domain"
	apperrors "github.com/homequest/support-service/pkg/util"
)

// PrincipalKey is the fiber.Ctx locals key carrying the Principal. The
// websocket handler reads it off conn.Locals after the upgrade.
const PrincipalKey = "auth_principal"

// Principal represents the authenticated caller. The token is the
// source of truth; no identity lookup happens here.
type Principal struct {
	SubjectType domain.SubjectType
	ID          string
	Name        string
	UserRole    *domain.UserRole
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes. The token comes
// from the Authorization header, or from the access_token query
// parameter for websocket upgrades where headers are unavailable.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token := ""
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperrors.NewUnauthorized("invalid authorization header")
		}
		token = parts[1]
	} else {
		token = c.Query("access_token")
	}
	if token == "" {
		return apperrors.NewUnauthorized("missing bearer token")
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.Subject != domain.SubjectTypeCustomer && claims.Subject != domain.SubjectTypeEmployee {
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(PrincipalKey, &Principal{
		SubjectType: claims.Subject,
		ID:          claims.SubjectID,
		Name:        claims.Name,
		UserRole:    claims.UserRole,
	})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(PrincipalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// PrincipalFromLocals converts a raw locals value, used by the
// websocket handler where only conn.Locals is available.
func PrincipalFromLocals(val interface{}) (*Principal, bool) {
	principal, ok := val.(*Principal)
	return principal, ok
}
