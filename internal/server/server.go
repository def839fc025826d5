package server

import (
	"app/internal/handler"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Newはechoインスタンスを組み立てる。
func New(authH *handler.AuthHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	//リクエストログ・panic回収・リクエストID
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	RegisterRoutes(e, authH)

	return e
}

// Startはサーバーを起動する。
func Start(addr string, authH *handler.AuthHandler) error {
	e := New(authH)
	return e.Start(addr)
}
