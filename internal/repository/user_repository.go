package repository

import (
	"app/internal/domain/model"
	"context"
	"errors"
)

// ユーザーが見つかりませんを統一
var ErrUserNotFound = errors.New("user not found")

// usernameが既に使われている（unique制約違反）
var ErrUsernameTaken = errors.New("username already taken")

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成（IDはDBが採番）
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する。
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	// usernameからユーザーを1件取得する。
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}
