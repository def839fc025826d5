package main

import (
	"log/slog"
	"os"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/infra/db"
	infraRepo "app/internal/infra/repository"
	"app/internal/server"
	"app/internal/token"
	auth "app/internal/usecase/auth_usecase"
	"app/internal/validator"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	// .envは無くてもよい（本番は環境変数直渡し）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
	); err != nil {
		slog.Error("automigrate failed", "error", err)
		os.Exit(1)
	}

	//RSA鍵読み込み（鍵の生成・ローテーションはこのアプリの外）
	privateKey, err := token.LoadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		slog.Error("private key load failed", "error", err)
		os.Exit(1)
	}
	publicKey, err := token.LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		slog.Error("public key load failed", "error", err)
		os.Exit(1)
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenRepository(gormDB)

	//usecaseに渡す部品
	hasher := auth.NewBcryptPasswordHasher(bcrypt.DefaultCost)
	verifier := auth.NewBcryptPasswordVerifier()
	authValidator := validator.NewAuthValidator()
	clock := &realClock{}

	//Usecase生成
	authUC := auth.NewAuthUsecase(userRepo, rtRepo, hasher, verifier, authValidator, clock)

	//Handler生成
	authH := handler.NewAuthHandler(authUC, cfg.AccessTokenTTL, privateKey, publicKey)

	//Server起動
	addr := ":" + cfg.Port
	slog.Info("starting server", "addr", addr, "env", cfg.GoEnv)
	if err := server.Start(addr, authH); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
