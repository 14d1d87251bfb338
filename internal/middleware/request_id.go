package middleware

import (
	"context"

	"ordersvc/internal/common"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// RequestID assigns every request a uuid (or keeps the caller's
// X-Request-ID) and copies it into the request context for logging.
func RequestID() echo.MiddlewareFunc {
	return echoMiddleware.RequestIDWithConfig(echoMiddleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := context.WithValue(c.Request().Context(), common.RequestIDKey, id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	})
}
