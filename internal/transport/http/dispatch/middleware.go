package dispatch

import (
	"github.com/labstack/echo/v4"

	"github.com/agrilink/agrilink/internal/auth"
	"github.com/agrilink/agrilink/internal/presentation/http/response"
)

// authRequired validates the bearer token and stashes the principal in the
// request context.
func authRequired(verifier *auth.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, err := verifier.VerifyBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return response.New(c).WithError(err).Build()
			}
			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), principal)))
			return next(c)
		}
	}
}
