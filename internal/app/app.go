// Package app はアプリケーションの初期化・起動・ワイヤリングを提供する。
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/sociosync/internal/auth"
	"github.com/hitoshi/sociosync/internal/changefeed"
	"github.com/hitoshi/sociosync/internal/config"
	"github.com/hitoshi/sociosync/internal/directus"
	"github.com/hitoshi/sociosync/internal/handler"
	"github.com/hitoshi/sociosync/internal/logger"
	"github.com/hitoshi/sociosync/internal/metrics"
	"github.com/hitoshi/sociosync/internal/middleware"
	"github.com/hitoshi/sociosync/internal/model"
	"github.com/hitoshi/sociosync/internal/roster"
	"github.com/hitoshi/sociosync/internal/security"
	"github.com/hitoshi/sociosync/internal/session"
	"github.com/hitoshi/sociosync/internal/token"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("backend_url", cfg.BackendURL),
		slog.String("collection", cfg.Collection),
	)

	switch cmd {
	case CommandLogin:
		return runLogin(cfg)
	case CommandServe:
		return runServe(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe は同期サービスモードで起動する。
// 認証を検証し、チェンジフィード・トークン監視・ローカルAPIサーバーを起動する。
// SIGINT/SIGTERMまたは強制ログアウトでグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. バックエンドクライアント
	clientConfig := directus.ClientConfig{
		BaseURL:    cfg.BackendURL,
		Collection: cfg.Collection,
		PrimaryKey: cfg.PrimaryKey,
		ListLimit:  cfg.ListLimit,
	}
	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	client := directus.NewClient(clientConfig, httpClient, slog.Default())
	realtime := directus.NewRealtime(clientConfig, slog.Default())

	// 2. 認証情報ストア。保存済みトークンがあればクライアントへ反映する
	store := token.NewStore(cfg.TokenPath)
	if cred, err := store.Load(); err == nil {
		client.SetToken(cred.AccessToken)
	}

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 認証ライフサイクル
	renewer := auth.NewRenewer(store, client, slog.Default(), collector)
	guard := auth.NewGuard(client, renewer, store, slog.Default())

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 更新が確定的に拒否された場合はプロセスごと落とし、再ログインを促す
	monitor := auth.NewMonitor(renewer, store, cfg.RenewInterval, slog.Default(), func() {
		slog.Error("再認証が必要です。`sociosync login` を実行してください")
		rootCancel()
	})

	// 5. キャッシュとチェンジフィード
	cache := roster.NewCache()
	cache.SetOnChange(func() {
		// UIは各レスポンスのversionで差分を検知する。ここでは観測用の痕跡のみ
		slog.Debug("名簿データセットが変化しました", slog.Uint64("version", cache.Version()))
	})
	sanitizer := security.NewFieldSanitizer()
	feed := changefeed.New(changefeed.Options{
		Cache:         cache,
		Lister:        client,
		Opener:        changefeed.NewRealtimeOpener(realtime),
		Renewer:       renewer,
		Tokens:        client,
		Sanitizer:     sanitizer,
		Recorder:      collector,
		Logger:        slog.Default(),
		PollInterval:  cfg.PollInterval,
		WatchdogGrace: cfg.WatchdogGrace,
	})

	// 6. セッション開始。認証が通らなければ起動しない
	sess := session.New(guard, feed, monitor, slog.Default())
	if err := sess.Start(rootCtx); err != nil {
		if errors.Is(err, model.ErrUnauthenticated) || errors.Is(err, model.ErrNoCredential) {
			return fmt.Errorf("認証されていません。`sociosync login` を実行してください: %w", err)
		}
		return fmt.Errorf("session start failed: %w", err)
	}
	defer sess.Close()

	// 7. ローカルAPIサーバー
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート値はreq/min単位なのでreq/secに変換する
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitWrite > 0 {
		rateLimiterCfg.WriteRate = rate.Limit(float64(cfg.RateLimitWrite) / 60.0)
		rateLimiterCfg.WriteBurst = cfg.RateLimitWrite
	}
	limiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer limiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Cache:             cache,
		Gateway:           client,
		Feed:              feed,
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		MetricsHandler:    metrics.Handler(registry),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("local API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// シグナルまたは強制ログアウトで停止する
	select {
	case <-stop:
		slog.Info("shutting down...")
	case <-rootCtx.Done():
		slog.Info("shutting down (forced logout)...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// runLogin はメールアドレスとパスワードで認証し、取得したペアを保存する。
// serveモードは対話しない。認証情報の取得はこのサブコマンドだけが行う。
func runLogin(cfg *config.Config) error {
	clientConfig := directus.ClientConfig{
		BaseURL:    cfg.BackendURL,
		Collection: cfg.Collection,
		PrimaryKey: cfg.PrimaryKey,
		ListLimit:  cfg.ListLimit,
	}
	client := directus.NewClient(clientConfig, &http.Client{Timeout: cfg.FetchTimeout}, slog.Default())
	store := token.NewStore(cfg.TokenPath)

	email, password, err := promptCredentials(os.Stdin, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cred, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := store.Save(cred); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	slog.Info("ログインに成功しました", slog.String("token_path", cfg.TokenPath))
	return nil
}

// promptCredentials はメールアドレスとパスワードを対話的に読み取る。
func promptCredentials(in io.Reader, out io.Writer) (email, password string, err error) {
	reader := bufio.NewReader(in)

	fmt.Fprint(out, "Email: ")
	email, err = reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}

	fmt.Fprint(out, "Password: ")
	password, err = reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}

	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return "", "", fmt.Errorf("メールアドレスとパスワードは必須です")
	}
	return email, password, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
