package repository

import (
	"app/internal/domain/model"
	"context"
	"errors"
)

// リフレッシュトークンが見つかりませんを統一
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// 曖昧な条件で2件以上ヒットした
var ErrMultipleRecords = errors.New("multiple records matched")

// FindOne/Deleteの検索条件。nilのフィールドは条件に含めない。
type RefreshTokenFilter struct {
	ID     *int64
	UserID *int64
}

// リフレッシュトークンの保存・取得・削除
type RefreshTokenRepository interface {
	// 新しい行をinsertしてDB採番のIDを返す
	Create(ctx context.Context, userID int64) (*model.RefreshToken, error)
	// 条件に一致する1件を取得。0件ならErrRefreshTokenNotFound、
	// 2件以上ならErrMultipleRecords
	FindOne(ctx context.Context, filter RefreshTokenFilter) (*model.RefreshToken, error)
	// 条件に一致する行を削除。0件削除ならErrRefreshTokenNotFound
	Delete(ctx context.Context, filter RefreshTokenFilter) error
}
