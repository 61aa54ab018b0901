// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/jobwatch/internal/cache"
	"github.com/hitoshi/jobwatch/internal/config"
	"github.com/hitoshi/jobwatch/internal/database"
	"github.com/hitoshi/jobwatch/internal/dedup"
	"github.com/hitoshi/jobwatch/internal/engagement"
	"github.com/hitoshi/jobwatch/internal/handler"
	"github.com/hitoshi/jobwatch/internal/ingest"
	"github.com/hitoshi/jobwatch/internal/logger"
	"github.com/hitoshi/jobwatch/internal/match"
	"github.com/hitoshi/jobwatch/internal/metrics"
	"github.com/hitoshi/jobwatch/internal/model"
	"github.com/hitoshi/jobwatch/internal/notify"
	"github.com/hitoshi/jobwatch/internal/repository"
	"github.com/hitoshi/jobwatch/internal/security"
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
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runWorker(cfg)
	}
}

// runWorker はワーカーモードで起動する。
// インジェストスケジューラ、エンゲージメントバッチ、運用HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Redis接続（任意）
	var lease ingest.Lease
	var seen notify.SeenMarker
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		lease = cache.NewRunLease(redisClient, "jobwatch:ingest:lease", cfg.RunTimeout)
		seen = cache.NewSeenCache(redisClient, cfg.LookbackWindow)
		slog.Info("redis connection established")
	}

	// 3. リポジトリの初期化
	postingRepo := repository.NewPostgresPostingRepo(db)
	subscriberRepo := repository.NewPostgresSubscriberRepo(db)
	deliveryRepo := repository.NewPostgresDeliveryRepo(db)

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	sanitizer := security.NewContentSanitizer()

	engine := dedup.NewEngine(postingRepo, slog.Default(), dedup.Config{
		LookbackWindow:             cfg.LookbackWindow,
		SimilarityThreshold:        cfg.SimilarityThreshold,
		ContactSimilarityThreshold: cfg.ContactSimilarityThreshold,
		FuzzyScanLimit:             cfg.FuzzyScanLimit,
		ContactScanLimit:           cfg.ContactScanLimit,
		BudgetRatio:                cfg.BudgetRatio,
	})

	matcher := match.NewMatcher(subscriberRepo, slog.Default())

	dispatcher := notify.NewDispatcher(
		deliveryRepo, buildChannelAdapters(cfg), seen,
		collector, slog.Default(), cfg.NotifyMaxConcurrent,
	)

	// 6. インジェストパイプラインの初期化
	source := ingest.NewHTTPSource(cfg.ScraperAPIURL, cfg.ScraperAPITimeout)
	coordinator := ingest.NewCoordinator(
		source, sanitizer, engine, matcher, dispatcher,
		postingRepo, collector, slog.Default(),
		cfg.ScrapePullRate, cfg.ScrapeBatchSize, cfg.ScrapeMaxConcurrent,
	)

	scheduler := ingest.NewScheduler(
		coordinator, lease, slog.Default(), cfg.ScrapeInterval, cfg.RunTimeout,
	)

	// 7. エンゲージメントバッチジョブの初期化
	engagementClient := engagement.NewClient(cfg.ScraperAPIURL, cfg.ScraperAPITimeout)
	engagementBatch := engagement.NewBatchJob(
		postingRepo, engagementClient, collector, slog.Default(),
		engagement.BatchConfig{
			BatchInterval:    cfg.EngagementBatchInterval,
			APIInterval:      cfg.EngagementAPIInterval,
			MaxCallsPerCycle: cfg.EngagementMaxCallsPerCycle,
			RefreshTTL:       cfg.EngagementTTL,
		},
	)

	// 8. 運用HTTPサーバーの初期化
	router := handler.NewRouter(db, registry, slog.Default())
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
		slog.Info("ops server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// エンゲージメントバッチジョブをバックグラウンドで起動
	go engagementBatch.Start(ctx)

	// インジェストスケジューラの起動
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info("worker started",
		slog.Duration("scrape_interval", cfg.ScrapeInterval),
		slog.Int("max_concurrent", cfg.ScrapeMaxConcurrent),
	)

	<-stop
	slog.Info("shutting down worker...")
	cancel()

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// buildChannelAdapters は設定に応じて通知チャネルアダプタを構築する。
// SMTPが設定されている場合はemailチャネルにSMTPアダプタを使用し、
// 未設定の場合は開発用のコンソールアダプタにフォールバックする。
// chat/pushは外部連携が未実装のためコンソールアダプタを使用する。
func buildChannelAdapters(cfg *config.Config) []notify.ChannelAdapter {
	var adapters []notify.ChannelAdapter

	if cfg.SMTPHost != "" {
		adapters = append(adapters, notify.NewEmailAdapter(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom,
		))
	} else {
		adapters = append(adapters, notify.NewConsoleAdapter(model.ChannelEmail, os.Stdout))
	}

	adapters = append(adapters,
		notify.NewConsoleAdapter(model.ChannelChat, os.Stdout),
		notify.NewConsoleAdapter(model.ChannelPush, os.Stdout),
	)

	return adapters
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
