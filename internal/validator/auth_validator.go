package validator

import (
	"context"
	"errors"

	auth "app/internal/usecase/auth_usecase"
)

// 入力が不正
var ErrInvalidInput = errors.New("invalid input")

type authValidator struct{}

// Usecaseは interface を依存注入
func NewAuthValidator() auth.AuthValidator {
	return &authValidator{}
}

// 資格情報の形チェック。
// 形は固定の2フィールドなのでスキーマ定義は持たず構造だけ見る。
// JSONで数値だった値はhandler側で文字列に寄せてから渡ってくる。
func (v *authValidator) ValidateCredentials(ctx context.Context, username string, password string) error {
	// 必須チェック
	if username == "" || password == "" {
		return ErrInvalidInput
	}

	return nil
}
