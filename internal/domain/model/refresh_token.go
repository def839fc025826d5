package model

import "time"

// RefreshTokenはログインごとに1行作られるサーバー側のセッション記録。
// access tokenのjtiはこのIDを指す。
type RefreshToken struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
