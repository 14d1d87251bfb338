package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ordersvc/internal/common"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

const tokenContextKey = "user"

// OwnerClaim is the token claim carrying the caller's user id.
const OwnerClaim = "user_id"

// JWTConfig selects how bearer tokens are verified. JWKSURL wins over Secret
// when both are set.
type JWTConfig struct {
	Secret  string
	JWKSURL string
	Logger  *slog.Logger
}

// Authenticator verifies bearer tokens and puts the caller's id in the
// request context.
type Authenticator struct {
	verify echo.MiddlewareFunc
	jwks   *keyfunc.JWKS
	log    *slog.Logger
}

func NewAuthenticator(cfg JWTConfig) (*Authenticator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	echoCfg := echojwt.Config{
		ContextKey: tokenContextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, common.CreateErrorResponse("UNAUTHORIZED", "Invalid or missing token", nil))
		},
	}

	a := &Authenticator{log: logger}
	switch {
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.Error("failed to refresh JWKS", "url", cfg.JWKSURL, "error", err)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("load JWKS: %w", err)
		}
		a.jwks = jwks
		echoCfg.KeyFunc = jwks.Keyfunc
	case cfg.Secret != "":
		echoCfg.SigningKey = []byte(cfg.Secret)
		echoCfg.SigningMethod = echojwt.AlgorithmHS256
	default:
		return nil, fmt.Errorf("either a JWT secret or a JWKS url is required")
	}

	a.verify = echojwt.WithConfig(echoCfg)
	return a, nil
}

// Middleware verifies the token, then resolves the owner id from its claims.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return a.verify(OwnerFromToken(next))
	}
}

// Close stops the background JWKS refresh, if any.
func (a *Authenticator) Close() {
	if a.jwks != nil {
		a.jwks.EndBackground()
	}
}

// OwnerFromToken reads the user_id claim of the verified token stored by
// echo-jwt and stores it under common.OwnerIDKey.
func OwnerFromToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get(tokenContextKey).(*jwt.Token)
		if !ok {
			return common.SendUnauthorizedError(c)
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return common.SendForbiddenError(c, "Invalid token payload")
		}

		ownerID, ok := ownerIDFromClaims(claims)
		if !ok {
			return common.SendForbiddenError(c, "Invalid token payload")
		}

		ctx := common.WithOwnerID(c.Request().Context(), ownerID)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// ownerIDFromClaims accepts the id as a JSON number or a numeric string.
func ownerIDFromClaims(claims jwt.MapClaims) (int64, bool) {
	var (
		id  int64
		err error
	)
	switch v := claims[OwnerClaim].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		id = int64(v)
	case json.Number:
		id, err = v.Int64()
	case string:
		id, err = strconv.ParseInt(v, 10, 64)
	default:
		return 0, false
	}
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
