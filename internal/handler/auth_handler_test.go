package handler_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/repository"
	"app/internal/server"
	"app/internal/token"
	auth "app/internal/usecase/auth_usecase"
	"app/internal/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

// =====================
// In-memory repositories
// =====================

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*model.User // username -> user
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{}}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.Username]; ok {
		return repository.ErrUsernameTaken
	}
	r.nextID++
	user.ID = r.nextID
	copied := *user
	r.users[user.Username] = &copied
	return nil
}

func (r *fakeUserRepo) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.ID == userID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

type fakeRefreshTokenRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.RefreshToken
}

func newFakeRefreshTokenRepo() *fakeRefreshTokenRepo {
	return &fakeRefreshTokenRepo{rows: map[int64]*model.RefreshToken{}}
}

func (r *fakeRefreshTokenRepo) Create(ctx context.Context, userID int64) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	row := &model.RefreshToken{ID: r.nextID, UserID: userID}
	r.rows[row.ID] = row
	copied := *row
	return &copied, nil
}

func (r *fakeRefreshTokenRepo) FindOne(ctx context.Context, filter repository.RefreshTokenFilter) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*model.RefreshToken
	for _, row := range r.rows {
		if filter.ID != nil && row.ID != *filter.ID {
			continue
		}
		if filter.UserID != nil && row.UserID != *filter.UserID {
			continue
		}
		matched = append(matched, row)
	}

	switch len(matched) {
	case 0:
		return nil, repository.ErrRefreshTokenNotFound
	case 1:
		copied := *matched[0]
		return &copied, nil
	default:
		return nil, repository.ErrMultipleRecords
	}
}

func (r *fakeRefreshTokenRepo) Delete(ctx context.Context, filter repository.RefreshTokenFilter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, row := range r.rows {
		if filter.ID != nil && row.ID != *filter.ID {
			continue
		}
		if filter.UserID != nil && row.UserID != *filter.UserID {
			continue
		}
		delete(r.rows, id)
		deleted++
	}

	if deleted == 0 {
		return repository.ErrRefreshTokenNotFound
	}
	return nil
}

func (r *fakeRefreshTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// 同じユーザーの行が2つあるとき、user_idだけの検索は曖昧としてエラーになる
func TestRefreshTokenStore_FindOne_AmbiguousUserFilter(t *testing.T) {
	ctx := context.Background()
	rtRepo := newFakeRefreshTokenRepo()

	first, err := rtRepo.Create(ctx, 1)
	assert.NoError(t, err)
	second, err := rtRepo.Create(ctx, 1)
	assert.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	userID := int64(1)
	_, err = rtRepo.FindOne(ctx, repository.RefreshTokenFilter{UserID: &userID})
	assert.ErrorIs(t, err, repository.ErrMultipleRecords)

	// 一意なIDで絞れば1件に決まる
	row, err := rtRepo.FindOne(ctx, repository.RefreshTokenFilter{ID: &first.ID})
	assert.NoError(t, err)
	assert.Equal(t, first.ID, row.ID)

	// 片方を消せばuser_idでも1件に決まる
	assert.NoError(t, rtRepo.Delete(ctx, repository.RefreshTokenFilter{ID: &first.ID}))

	row, err = rtRepo.FindOne(ctx, repository.RefreshTokenFilter{UserID: &userID})
	assert.NoError(t, err)
	assert.Equal(t, second.ID, row.ID)
}

// =====================
// Helper
// =====================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testApp struct {
	e       *echo.Echo
	rtRepo  *fakeRefreshTokenRepo
	clock   *fakeClock
	privKey *rsa.PrivateKey
	pubKey  *rsa.PublicKey
}

const testTTL = 15 * time.Minute

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}

	userRepo := newFakeUserRepo()
	rtRepo := newFakeRefreshTokenRepo()
	// JWTの期限検証は実時間で走るので、fake clockも実時間から始める
	clock := &fakeClock{now: time.Now()}

	uc := auth.NewAuthUsecase(
		userRepo,
		rtRepo,
		auth.NewBcryptPasswordHasher(0),
		auth.NewBcryptPasswordVerifier(),
		validator.NewAuthValidator(),
		clock,
	)

	h := handler.NewAuthHandler(uc, testTTL, key, &key.PublicKey)
	return &testApp{
		e:       server.New(h),
		rtRepo:  rtRepo,
		clock:   clock,
		privKey: key,
		pubKey:  &key.PublicKey,
	}
}

func (a *testApp) doJSON(t *testing.T, method, path, bearer, body string) (int, []byte) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}

func decodeToken(t *testing.T, body []byte, pub *rsa.PublicKey) token.Claims {
	t.Helper()

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal token response: %v", err)
	}
	claims, err := token.Decode(resp.Token, pub, false)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return claims
}

func tokenString(t *testing.T, body []byte) string {
	t.Helper()

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal token response: %v", err)
	}
	return resp.Token
}

// =====================
// Scenario
// =====================

func TestAuth_EndToEnd(t *testing.T) {
	app := newTestApp(t)

	// 登録
	code, _ := app.doJSON(t, http.MethodPost, "/register", "", `{"username":"alice","password":"p1"}`)
	assert.Equal(t, http.StatusOK, code)

	// ログイン
	code, body := app.doJSON(t, http.MethodPost, "/login", "", `{"username":"alice","password":"p1"}`)
	assert.Equal(t, http.StatusOK, code)

	first := tokenString(t, body)
	firstClaims := decodeToken(t, body, app.pubKey)
	assert.Equal(t, int64(1), firstClaims.UserID)
	assert.Equal(t, app.clock.Now().Add(testTTL).Unix(), firstClaims.ExpiresAt)
	assert.Equal(t, 1, app.rtRepo.count())

	// 時計を進めてrefresh → 同じjtiでexpだけ先に進む
	app.clock.advance(2 * time.Second)

	code, body = app.doJSON(t, http.MethodPost, "/refresh-token", first, "")
	assert.Equal(t, http.StatusOK, code)

	refreshed := decodeToken(t, body, app.pubKey)
	assert.Equal(t, firstClaims.TokenID, refreshed.TokenID)
	assert.Equal(t, firstClaims.UserID, refreshed.UserID)
	assert.Greater(t, refreshed.ExpiresAt, firstClaims.ExpiresAt)

	// refreshしてもDBの行は増えない
	assert.Equal(t, 1, app.rtRepo.count())

	// logout → 行が消える
	code, _ = app.doJSON(t, http.MethodPost, "/logout", first, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, app.rtRepo.count())

	// logout後のrefreshは最初のtokenでも失敗する
	code, body = app.doJSON(t, http.MethodPost, "/refresh-token", first, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, string(body), "ERR_REFRESH_TOKEN")
}

func TestAuth_Login_TwiceGivesIndependentSessions(t *testing.T) {
	app := newTestApp(t)

	app.doJSON(t, http.MethodPost, "/register", "", `{"username":"alice","password":"p1"}`)

	_, body1 := app.doJSON(t, http.MethodPost, "/login", "", `{"username":"alice","password":"p1"}`)
	_, body2 := app.doJSON(t, http.MethodPost, "/login", "", `{"username":"alice","password":"p1"}`)

	c1 := decodeToken(t, body1, app.pubKey)
	c2 := decodeToken(t, body2, app.pubKey)

	assert.Equal(t, c1.UserID, c2.UserID)
	assert.NotEqual(t, c1.TokenID, c2.TokenID)
	assert.Equal(t, 2, app.rtRepo.count())

	// 片方をlogoutしてももう片方は生きている
	code, _ := app.doJSON(t, http.MethodPost, "/logout", tokenString(t, body1), "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = app.doJSON(t, http.MethodPost, "/refresh-token", tokenString(t, body2), "")
	assert.Equal(t, http.StatusOK, code)
}

func TestAuth_Login_ExpiredAccessTokenStillRefreshes(t *testing.T) {
	app := newTestApp(t)

	app.doJSON(t, http.MethodPost, "/register", "", `{"username":"alice","password":"p1"}`)
	_, body := app.doJSON(t, http.MethodPost, "/login", "", `{"username":"alice","password":"p1"}`)
	tok := tokenString(t, body)

	// access tokenのexpを過ぎてもrefreshは通る
	app.clock.advance(testTTL + time.Hour)

	code, body := app.doJSON(t, http.MethodPost, "/refresh-token", tok, "")
	assert.Equal(t, http.StatusOK, code)

	refreshed := decodeToken(t, body, app.pubKey)
	assert.Equal(t, app.clock.Now().Add(testTTL).Unix(), refreshed.ExpiresAt)
}

// =====================
// エラー系
// =====================

func TestAuth_Login_BadCredentials(t *testing.T) {
	app := newTestApp(t)

	app.doJSON(t, http.MethodPost, "/register", "", `{"username":"alice","password":"p1"}`)

	// パスワード違いとユーザー不在は同じレスポンス
	codeWrong, bodyWrong := app.doJSON(t, http.MethodPost, "/login", "", `{"username":"alice","password":"bad"}`)
	codeNoUser, bodyNoUser := app.doJSON(t, http.MethodPost, "/login", "", `{"username":"nobody","password":"p1"}`)

	assert.Equal(t, http.StatusUnauthorized, codeWrong)
	assert.Equal(t, http.StatusUnauthorized, codeNoUser)
	assert.JSONEq(t, string(bodyWrong), string(bodyNoUser))
}

func TestAuth_Login_MissingBody(t *testing.T) {
	app := newTestApp(t)

	cases := []string{
		"",
		`{}`,
		`{"username":"alice"}`,
		`{"password":"p1"}`,
		`{"username":["alice"],"password":"p1"}`,
		// 数値は整数だけ。小数や指数表記は資格情報として受けない
		`{"username":1.5,"password":"p1"}`,
		`{"username":"alice","password":6.7e2}`,
		`not json`,
	}

	for _, body := range cases {
		code, resp := app.doJSON(t, http.MethodPost, "/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, code, "body=%q", body)
		assert.Contains(t, string(resp), "ERR_NO_CREDENTIALS", "body=%q", body)
	}
}

func TestAuth_NumericCredentialsAccepted(t *testing.T) {
	app := newTestApp(t)

	// usernameもpasswordも数値で送ってよい（文字列に寄せられる）
	code, _ := app.doJSON(t, http.MethodPost, "/register", "", `{"username":12345,"password":67890}`)
	assert.Equal(t, http.StatusOK, code)

	code, body := app.doJSON(t, http.MethodPost, "/login", "", `{"username":"12345","password":"67890"}`)
	assert.Equal(t, http.StatusOK, code)

	claims := decodeToken(t, body, app.pubKey)
	assert.Equal(t, int64(1), claims.UserID)
}

func TestAuth_Register_Duplicate(t *testing.T) {
	app := newTestApp(t)

	code, _ := app.doJSON(t, http.MethodPost, "/register", "", `{"username":"alice","password":"p1"}`)
	assert.Equal(t, http.StatusOK, code)

	code, body := app.doJSON(t, http.MethodPost, "/register", "", `{"username":"alice","password":"other"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(body), "CONFLICT")
}

func TestAuth_Refresh_ForgedJTI(t *testing.T) {
	app := newTestApp(t)

	app.doJSON(t, http.MethodPost, "/register", "", `{"username":"alice","password":"p1"}`)
	app.doJSON(t, http.MethodPost, "/login", "", `{"username":"alice","password":"p1"}`)

	// 署名は正しいがjtiがDBに無いtokenを自作する
	claims := token.Claims{UserID: 1, TokenID: 999, ExpiresAt: app.clock.Now().Add(time.Hour).Unix()}
	forged, err := token.Encode(claims, app.privKey)
	assert.NoError(t, err)

	code, body := app.doJSON(t, http.MethodPost, "/refresh-token", forged, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, string(body), "ERR_REFRESH_TOKEN")

	// logoutも同じ扱い
	code, body = app.doJSON(t, http.MethodPost, "/logout", forged, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, string(body), "ERR_REFRESH_TOKEN")

	// 別の鍵で署名したtokenはjti以前に署名不正で落ちる
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)
	badSig, err := token.Encode(claims, otherKey)
	assert.NoError(t, err)

	code, _ = app.doJSON(t, http.MethodPost, "/refresh-token", badSig, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}
