package token

import (
	"crypto/rsa"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// 署名・形式が不正
	ErrInvalidToken = errors.New("invalid token")
	// 署名は正しいが期限切れ
	ErrTokenExpired = errors.New("token expired")
)

// Claimsはaccess tokenの中身。持つのはsub/jti/expの3つだけ。
//   - sub: ユーザーID
//   - jti: refresh token行のID
//   - exp: 失効時刻（Unix秒）
type Claims struct {
	UserID    int64 `json:"sub"`
	TokenID   int64 `json:"jti"`
	ExpiresAt int64 `json:"exp"`
}

// jwt.Claimsの実装。expだけが検証対象。
func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	if c.ExpiresAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) { return nil, nil }

func (c Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

func (c Claims) GetIssuer() (string, error) { return "", nil }

func (c Claims) GetSubject() (string, error) {
	return strconv.FormatInt(c.UserID, 10), nil
}

func (c Claims) GetAudience() (jwt.ClaimStrings, error) { return nil, nil }

// EncodeはclaimsをRS256で署名したJWT文字列にする。
func Encode(claims Claims, privateKey *rsa.PrivateKey) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return t.SignedString(privateKey)
}

// Decodeは署名を検証してclaimsを取り出す。
// verifyExpiry=falseのときは署名だけ検証して期限切れを許す。
// refreshエンドポイントが期限切れtokenを受けるための入口。
func Decode(tokenString string, publicKey *rsa.PublicKey, verifyExpiry bool) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	}
	if verifyExpiry {
		// expの無いtokenを「期限なし」として通さない
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !t.Valid {
		return Claims{}, ErrInvalidToken
	}

	return *claims, nil
}
