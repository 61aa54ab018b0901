// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（任意）。未設定の場合はプロセス内ガードのみで単一実行を保証する。
	RedisURL string

	// Scrape
	ScraperAPIURL       string // スクレイパーAPIのベースURL
	ScraperAPITimeout   time.Duration
	ScrapeInterval      time.Duration
	ScrapeBatchSize     int
	ScrapeMaxConcurrent int
	ScrapePullRate      float64 // カテゴリごとのPull呼び出しレート（req/sec）
	RunTimeout          time.Duration

	// Dedup
	LookbackWindow             time.Duration
	SimilarityThreshold        float64
	ContactSimilarityThreshold float64
	FuzzyScanLimit             int
	ContactScanLimit           int
	BudgetRatio                float64

	// Notify
	NotifyMaxConcurrent int

	// Engagement
	EngagementBatchInterval    time.Duration
	EngagementAPIInterval      time.Duration
	EngagementMaxCallsPerCycle int
	EngagementTTL              time.Duration

	// SMTP（emailチャネルアダプタ用。未設定の場合はemailチャネル無効）
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.ScraperAPIURL = getEnvString("SCRAPER_API_URL", "http://localhost:9000")
	cfg.ScraperAPITimeout = getEnvDuration("SCRAPER_API_TIMEOUT", 30*time.Second)
	cfg.ScrapeInterval = getEnvDuration("SCRAPE_INTERVAL", 5*time.Minute)
	cfg.ScrapeBatchSize = getEnvInt("SCRAPE_BATCH_SIZE", 20)
	cfg.ScrapeMaxConcurrent = getEnvInt("SCRAPE_MAX_CONCURRENT", 3)
	cfg.ScrapePullRate = getEnvFloat("SCRAPE_PULL_RATE", 0.5)
	cfg.RunTimeout = getEnvDuration("RUN_TIMEOUT", 4*time.Minute)
	cfg.LookbackWindow = getEnvDuration("LOOKBACK_WINDOW", 48*time.Hour)
	cfg.SimilarityThreshold = getEnvFloat("SIMILARITY_THRESHOLD", 0.85)
	cfg.ContactSimilarityThreshold = getEnvFloat("CONTACT_SIMILARITY_THRESHOLD", 0.70)
	cfg.FuzzyScanLimit = getEnvInt("FUZZY_SCAN_LIMIT", 50)
	cfg.ContactScanLimit = getEnvInt("CONTACT_SCAN_LIMIT", 10)
	cfg.BudgetRatio = getEnvFloat("BUDGET_RATIO", 0.8)
	cfg.NotifyMaxConcurrent = getEnvInt("NOTIFY_MAX_CONCURRENT", 5)
	cfg.EngagementBatchInterval = getEnvDuration("ENGAGEMENT_BATCH_INTERVAL", 10*time.Minute)
	cfg.EngagementAPIInterval = getEnvDuration("ENGAGEMENT_API_INTERVAL", 5*time.Second)
	cfg.EngagementMaxCallsPerCycle = getEnvInt("ENGAGEMENT_MAX_CALLS_PER_CYCLE", 100)
	cfg.EngagementTTL = getEnvDuration("ENGAGEMENT_TTL", 24*time.Hour)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", cfg.SMTPUser)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
