package middleware

import (
	"crypto/rsa"
	"errors"
	"net/http"
	"strings"

	"app/internal/token"

	"github.com/labstack/echo/v4"
)

// contextに入れるclaimsのキー
const CtxClaimsKey = "auth_claims"

// bearerAuth用のJWT検証ミドルウェア。
// 署名と期限の両方を検証する。
func AuthJWT(publicKey *rsa.PublicKey) echo.MiddlewareFunc {
	return authJWT(publicKey, true)
}

// refresh専用。署名は検証するが期限切れは通す。
// 期限切れのaccess tokenでrefreshできるのはこの入口だけ。
func AuthJWTAllowExpired(publicKey *rsa.PublicKey) echo.MiddlewareFunc {
	return authJWT(publicKey, false)
}

func authJWT(publicKey *rsa.PublicKey, verifyExpiry bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//署名を検証してclaimsを取り出す
			claims, err := token.Decode(rawToken, publicKey, verifyExpiry)
			if err != nil {
				if errors.Is(err, token.ErrTokenExpired) {
					return c.JSON(http.StatusUnauthorized, errorJSON("token expired"))
				}
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			if claims.UserID <= 0 || claims.TokenID <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//contextへ保存
			c.Set(CtxClaimsKey, claims)

			return next(c)
		}
	}
}

// contextからclaimsを取り出す
func ClaimsFromContext(c echo.Context) (token.Claims, bool) {
	claims, ok := c.Get(CtxClaimsKey).(token.Claims)
	return claims, ok
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
