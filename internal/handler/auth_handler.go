package handler

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"app/internal/middleware"
	auth "app/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// /login /refresh-token /logout /register のAPI
type AuthHandler struct {
	uc         *auth.AuthUsecase
	accessTTL  time.Duration   // access tokenの有効期間
	privateKey *rsa.PrivateKey // JWT署名鍵
	publicKey  *rsa.PublicKey  // JWT検証鍵
}

// DIコンストラクタ
func NewAuthHandler(
	uc *auth.AuthUsecase,
	accessTTL time.Duration,
	privateKey *rsa.PrivateKey,
	publicKey *rsa.PublicKey,
) *AuthHandler {
	return &AuthHandler{
		uc:         uc,
		accessTTL:  accessTTL,
		privateKey: privateKey,
		publicKey:  publicKey,
	}
}

// 認証のルートを登録
func (h *AuthHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/login", h.Login)
	e.POST("/refresh-token", h.Refresh, middleware.AuthJWTAllowExpired(h.publicKey))
	e.POST("/logout", h.Logout, middleware.AuthJWT(h.publicKey))
	e.POST("/register", h.Register)
}

// flexStringはJSONの文字列と整数をどちらも受けて文字列に寄せる。
// usernameに数値を送るクライアントがいるための受け口。
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		// 小数や指数表記は受けない。整数だけ文字列化する
		if _, err := num.Int64(); err != nil {
			return errors.New("must be string or integer")
		}
		*s = flexString(num.String())
		return nil
	}

	return errors.New("must be string or integer")
}

// /login /register のリクエストボディ。
type credentialsRequest struct {
	Username flexString `json:"username"`
	Password flexString `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// LoginはPOST /login のハンドラ。
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		// bodyが無い・形が違うのも「資格情報なし」として401
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "ERR_NO_CREDENTIALS"})
	}

	tok, err := h.uc.Login(c.Request().Context(), auth.Credentials{
		Username: string(req.Username),
		Password: string(req.Password),
	}, h.accessTTL, h.privateKey)
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, tokenResponse{Token: tok})
}

// RefreshはPOST /refresh-token のハンドラ。
// 期限切れ許可のJWTミドルウェアを通った後に呼ばれる。
func (h *AuthHandler) Refresh(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	tok, err := h.uc.Refresh(c.Request().Context(), claims, h.accessTTL, h.privateKey)
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, tokenResponse{Token: tok})
}

// LogoutはPOST /logout のハンドラ。
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	if err := h.uc.Logout(c.Request().Context(), claims); err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{})
}

// RegisterはPOST /register のハンドラ。
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "ERR_NO_CREDENTIALS"})
	}

	user, err := h.uc.Register(c.Request().Context(), auth.Credentials{
		Username: string(req.Username),
		Password: string(req.Password),
	})
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, user)
}

// usecaseのエラーをHTTPステータスへ変換
func writeAuthError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "ERR_NO_CREDENTIALS"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "ERR_WRONG_CREDENTIALS"})
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "ERR_REFRESH_TOKEN"})
	case errors.Is(err, auth.ErrUsernameTaken):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "CONFLICT"})
	default:
		//500
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
