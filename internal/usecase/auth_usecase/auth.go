package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"app/internal/domain/model"
	"app/internal/repository"
	"app/internal/token"
)

var (
	// bodyが無い・username/passwordが欠けている
	ErrMissingCredentials = errors.New("missing credentials")

	// ユーザーが存在しない、またはパスワード違い。
	// どちらか区別できるとusername列挙に使われるので1つにまとめる。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// jtiに対応するrefresh token行がDBに無い（ログアウト済み・偽造など）
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// usernameが既に使われている
	ErrUsernameTaken = errors.New("username already taken")
)

// 入力の形チェックをvalidatorに寄せる約束
type AuthValidator interface {
	ValidateCredentials(ctx context.Context, username string, password string) error
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

// handlerからusecaseに渡すログイン入力
type Credentials struct {
	Username string
	Password string
}

// AuthUsecaseはlogin/refresh/logoutを司る。
// 呼び出しをまたぐ状態は持たず、全部DBのrefresh_tokens行に置く。
type AuthUsecase struct {
	users     repository.UserRepository
	rtRepo    repository.RefreshTokenRepository
	hasher    PasswordHasher
	verifier  PasswordVerifier
	validator AuthValidator
	clock     Clock
}

// DI
func NewAuthUsecase(
	users repository.UserRepository,
	rtRepo repository.RefreshTokenRepository,
	hasher PasswordHasher,
	verifier PasswordVerifier,
	validator AuthValidator,
	clock Clock,
) *AuthUsecase {
	return &AuthUsecase{
		users:     users,
		rtRepo:    rtRepo,
		hasher:    hasher,
		verifier:  verifier,
		validator: validator,
		clock:     clock,
	}
}

// Identifyは資格情報からユーザーを特定する。
// 「ユーザーがいない」と「パスワード違い」は同じエラーで返す。
func (u *AuthUsecase) Identify(ctx context.Context, creds Credentials) (*model.User, error) {
	//入力の形チェック
	if err := u.validator.ValidateCredentials(ctx, creds.Username, creds.Password); err != nil {
		return nil, ErrMissingCredentials
	}

	//usernameでユーザー取得
	user, err := u.users.FindByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	//パスワード照合（bcrypt）
	if ok := u.verifier.Verify(creds.Password, user.PasswordHash); !ok {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Loginは資格情報を検証してaccess tokenを1本発行する。
// ログインのたびにrefresh token行が1行増える。
// 同じユーザーの同時ログインはそれぞれ独立した行になる。
func (u *AuthUsecase) Login(ctx context.Context, creds Credentials, ttl time.Duration, privateKey *rsa.PrivateKey) (string, error) {
	user, err := u.Identify(ctx, creds)
	if err != nil {
		return "", err
	}

	//refresh token行を作る（IDはDB採番）
	refresh, err := u.rtRepo.Create(ctx, user.ID)
	if err != nil {
		return "", err
	}

	//jtiにrefresh token行のIDを入れて署名
	claims := token.Claims{
		UserID:    user.ID,
		TokenID:   refresh.ID,
		ExpiresAt: u.clock.Now().Add(ttl).Unix(),
	}

	return token.Encode(claims, privateKey)
}

// Refreshは期限切れを許して署名検証済みのclaimsを受け取り、
// jtiの行がまだ残っていれば同じjtiで新しいexpのtokenを返す。
// jtiはセッションの一生を通じて変わらない。
func (u *AuthUsecase) Refresh(ctx context.Context, claims token.Claims, ttl time.Duration, privateKey *rsa.PrivateKey) (string, error) {
	refresh, err := u.rtRepo.FindOne(ctx, repository.RefreshTokenFilter{ID: &claims.TokenID})
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}

	// subと行のuser_idはログイン時に同じ値で作っているので必ず一致するはずだが、
	// ズレたtokenは受け付けない
	if claims.UserID != refresh.UserID {
		return "", ErrInvalidRefreshToken
	}

	newClaims := token.Claims{
		UserID:    claims.UserID,
		TokenID:   refresh.ID,
		ExpiresAt: u.clock.Now().Add(ttl).Unix(),
	}

	return token.Encode(newClaims, privateKey)
}

// Logoutはjtiの行を消す。以後このjtiではrefreshできない。
// 発行済みでまだ期限内のaccess tokenはexpまで生きる（失効させない設計）。
func (u *AuthUsecase) Logout(ctx context.Context, claims token.Claims) error {
	err := u.rtRepo.Delete(ctx, repository.RefreshTokenFilter{ID: &claims.TokenID})
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return ErrInvalidRefreshToken
		}
		return err
	}
	return nil
}

// Registerはユーザーを新規作成する。
func (u *AuthUsecase) Register(ctx context.Context, creds Credentials) (*model.User, error) {
	if err := u.validator.ValidateCredentials(ctx, creds.Username, creds.Password); err != nil {
		return nil, ErrMissingCredentials
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	hashed, err := u.hasher.Hash(creds.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     creds.Username,
		PasswordHash: hashed,
	}

	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	return user, nil
}
