package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	BackendURL string // DirectusスタイルAPIのベースURL（必須）
	Collection string // 同期対象コレクション名
	PrimaryKey string // 主キーのフィールド名

	// Token
	TokenPath     string        // 認証情報ペアの保存先ファイル
	RenewInterval time.Duration // トークン予防更新の間隔

	// ChangeFeed
	PollInterval  time.Duration // ポーリングモードの再取得間隔
	WatchdogGrace time.Duration // プッシュ購読後、無通信でポーリングに降格するまでの猶予
	ListLimit     int           // 全件取得時の上限件数
	FetchTimeout  time.Duration // 個々のHTTPリクエストのタイムアウト

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitWrite   int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BackendURL = strings.TrimRight(os.Getenv("BACKEND_URL"), "/")
	if cfg.BackendURL == "" {
		missing = append(missing, "BACKEND_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Collection = getEnvString("COLLECTION", "socios")
	cfg.PrimaryKey = getEnvString("PRIMARY_KEY", "ID_Socio")
	cfg.TokenPath = getEnvString("TOKEN_PATH", defaultTokenPath())
	cfg.RenewInterval = getEnvDuration("RENEW_INTERVAL", 5*time.Minute)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 10*time.Second)
	cfg.WatchdogGrace = getEnvDuration("WATCHDOG_GRACE", 12*time.Second)
	cfg.ListLimit = getEnvInt("LIST_LIMIT", 500)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitWrite = getEnvInt("RATE_LIMIT_WRITE", 30)

	return cfg, nil
}

// defaultTokenPath はホームディレクトリ配下の既定の保存先を返す。
// ホームが解決できない場合はカレントディレクトリにフォールバックする。
func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sociosync_credentials.json"
	}
	return filepath.Join(home, ".sociosync", "credentials.json")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
