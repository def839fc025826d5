package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
)

type refreshTokenGormRepository struct {
	db *gorm.DB //DB接続（GORM）
}

// GORM実装
func NewRefreshTokenRepository(db *gorm.DB) repo.RefreshTokenRepository {
	return &refreshTokenGormRepository{db: db}
}

// リフレッシュトークンを1行insertして、採番済みの行を返す。
func (r *refreshTokenGormRepository) Create(ctx context.Context, userID int64) (*model.RefreshToken, error) {
	token := &model.RefreshToken{UserID: userID}

	//タイムアウトやキャンセルをDB処理に伝える
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return nil, err
	}
	return token, nil
}

// 条件に一致する1件を返す。2件以上は曖昧な検索としてエラー。
func (r *refreshTokenGormRepository) FindOne(ctx context.Context, filter repo.RefreshTokenFilter) (*model.RefreshToken, error) {
	var tokens []model.RefreshToken

	// 2件まで読めば「1件かどうか」は判定できる
	err := applyFilter(r.db.WithContext(ctx), filter).
		Limit(2).
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}

	switch len(tokens) {
	case 0:
		return nil, repo.ErrRefreshTokenNotFound
	case 1:
		return &tokens[0], nil
	default:
		return nil, repo.ErrMultipleRecords
	}
}

// 条件に一致する行を削除。0件削除は「存在しない」を返す。
func (r *refreshTokenGormRepository) Delete(ctx context.Context, filter repo.RefreshTokenFilter) error {
	if filter.ID == nil && filter.UserID == nil {
		// 全行削除になる呼び出しは拒否
		return errors.New("refresh token delete requires a filter")
	}

	result := applyFilter(r.db.WithContext(ctx), filter).
		Delete(&model.RefreshToken{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repo.ErrRefreshTokenNotFound
	}

	return nil
}

// filterのnilでないフィールドだけをwhere句にする
func applyFilter(db *gorm.DB, filter repo.RefreshTokenFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	return db
}
