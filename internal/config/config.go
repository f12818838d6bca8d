// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const defaultJobExpireMinutes = 10

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	AppUsername     string // ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	SessionSecret   string // セッション署名用の秘密鍵

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize      int64 // 単一ファイルの最大サイズ（バイト）
	MaxPages         int   // 単一ファイルの最大ページ数
	MaxFiles         int   // 1回の面付けで受け付けるファイル数
	JobExpireMinutes int   // ジョブの有効期限（分）
	WorkDir          string

	// ジョブ/キュー設定
	QueueRedisURL       string // Asynq用Redis接続URL
	QueueConcurrency    int    // ワーカーの同時実行数
	AsyncThresholdBytes int64  // 同期処理から非同期へ切り替えるサイズ閾値
	AsyncThresholdFiles int    // 同期処理から非同期へ切り替えるファイル数閾値
	JobResultBaseURL    string // 結果ファイル取得用のベースURL

	// 面付け設定
	LoadWorkers        int    // ソース読み込みの並列数
	DefaultCapacity    int    // 1枚あたりの既定枚数
	DefaultOrientation string // 既定の向き (portrait, landscape)
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		SessionSecret:   getEnv("SESSION_SECRET", ""),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		MaxFileSize:      getEnvAsInt64("MAX_FILE_SIZE", 20*1024*1024), // 20MB
		MaxPages:         getEnvAsInt("MAX_PAGES", 200),
		MaxFiles:         getEnvAsInt("MAX_FILES", 50),
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", defaultJobExpireMinutes),
		WorkDir:          getEnv("WORK_DIR", ""),

		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		QueueConcurrency:    getEnvAsInt("QUEUE_CONCURRENCY", 4),
		AsyncThresholdBytes: getEnvAsInt64("ASYNC_THRESHOLD_BYTES", 50*1024*1024), // 50MB
		AsyncThresholdFiles: getEnvAsInt("ASYNC_THRESHOLD_FILES", 30),
		JobResultBaseURL:    getEnv("JOB_RESULT_BASE_URL", ""),

		LoadWorkers:        getEnvAsInt("LOAD_WORKERS", 4),
		DefaultCapacity:    getEnvAsInt("DEFAULT_CAPACITY", 4),
		DefaultOrientation: getEnv("DEFAULT_ORIENTATION", "portrait"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.DefaultCapacity <= 0 {
		return fmt.Errorf("DEFAULT_CAPACITY must be positive (got %d)", c.DefaultCapacity)
	}
	switch c.DefaultOrientation {
	case "portrait", "landscape":
	default:
		return fmt.Errorf("DEFAULT_ORIENTATION must be portrait or landscape (got %q)", c.DefaultOrientation)
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("MAX_FILES must be positive (got %d)", c.MaxFiles)
	}

	// ローカル開発では認証設定は任意
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
	}

	return nil
}

// JobTTL はジョブ記録と作業ディレクトリの保持期間です。
func (c *Config) JobTTL() time.Duration {
	if c.JobExpireMinutes <= 0 {
		return defaultJobExpireMinutes * time.Minute
	}
	return time.Duration(c.JobExpireMinutes) * time.Minute
}

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。不正な値は既定値に置き換えます。
func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
