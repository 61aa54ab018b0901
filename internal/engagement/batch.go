// Package engagement は投稿のエンゲージメント数を定期更新するバッチジョブを提供する。
package engagement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/jobwatch/internal/metrics"
	"github.com/hitoshi/jobwatch/internal/model"
	"github.com/hitoshi/jobwatch/internal/repository"
)

// maxIDsPerRequest は1回のAPI呼び出しで問い合わせる最大ID数。
const maxIDsPerRequest = 50

// CounterSource はエンゲージメント数取得のインターフェース。
// テスト時にモックに差し替え可能。
type CounterSource interface {
	// GetEngagementCounts はnative_idごとのエンゲージメント数を取得する。
	// レスポンスに含まれないIDは削除済み投稿として扱われる。
	GetEngagementCounts(ctx context.Context, nativeIDs []string) (map[string]model.Engagement, error)
}

// BatchConfig はバッチジョブの設定パラメータ。
// 環境変数から設定可能。
type BatchConfig struct {
	// BatchInterval はバッチジョブの実行間隔（デフォルト: 10分）。
	BatchInterval time.Duration
	// APIInterval はAPI呼び出しの最低間隔（デフォルト: 5秒）。
	APIInterval time.Duration
	// MaxCallsPerCycle は1サイクルあたりの最大API呼び出し回数（デフォルト: 100）。
	MaxCallsPerCycle int
	// RefreshTTL はエンゲージメント数の再取得間隔（デフォルト: 24時間）。
	RefreshTTL time.Duration
}

// DefaultBatchConfig はデフォルトのバッチジョブ設定を返す。
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchInterval:    10 * time.Minute,
		APIInterval:      5 * time.Second,
		MaxCallsPerCycle: 100,
		RefreshTTL:       24 * time.Hour,
	}
}

// BatchJob はエンゲージメント数のバッチ取得ジョブ。
// engagement_fetched_atがNULLまたはTTL経過した投稿を対象に
// エンゲージメントAPIを呼び出して数値を更新する。
// 重複判定・通知の経路には関与しない。
type BatchJob struct {
	postingRepo       repository.PostingRepository
	source            CounterSource
	metrics           metrics.MetricsCollector
	logger            *slog.Logger
	config            BatchConfig
	consecutiveErrors int
	backoffUntil      time.Time
}

// NewBatchJob はBatchJobの新しいインスタンスを生成する。
func NewBatchJob(
	postingRepo repository.PostingRepository,
	source CounterSource,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config BatchConfig,
) *BatchJob {
	return &BatchJob{
		postingRepo: postingRepo,
		source:      source,
		metrics:     collector,
		logger:      logger,
		config:      config,
	}
}

// Start はバッチジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (b *BatchJob) Start(ctx context.Context) {
	ticker := time.NewTicker(b.config.BatchInterval)
	defer ticker.Stop()

	b.logger.Info("エンゲージメントバッチジョブを開始しました",
		slog.Duration("batch_interval", b.config.BatchInterval),
		slog.Duration("api_interval", b.config.APIInterval),
		slog.Int("max_calls_per_cycle", b.config.MaxCallsPerCycle),
	)

	// 起動直後に1回実行
	if err := b.RunOnce(ctx); err != nil {
		b.logger.Error("エンゲージメントバッチサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("エンゲージメントバッチジョブを停止しました")
			return
		case <-ticker.C:
			if err := b.RunOnce(ctx); err != nil {
				b.logger.Error("エンゲージメントバッチサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回のバッチサイクルを実行する。
// 更新対象の投稿を取得し、50ID単位でAPIを呼び出してエンゲージメント数を更新する。
func (b *BatchJob) RunOnce(ctx context.Context) error {
	start := time.Now()

	// バックオフ中の場合はスキップ
	if !b.backoffUntil.IsZero() && time.Now().Before(b.backoffUntil) {
		b.logger.Info("エンゲージメントバッチジョブはバックオフ中のためスキップします",
			slog.Time("backoff_until", b.backoffUntil),
		)
		return nil
	}

	// 取得対象投稿の上限 = MaxCallsPerCycle * maxIDsPerRequest
	fetchLimit := b.config.MaxCallsPerCycle * maxIDsPerRequest

	postings, err := b.postingRepo.ListNeedingEngagementRefresh(ctx, b.config.RefreshTTL, fetchLimit)
	if err != nil {
		return fmt.Errorf("エンゲージメント更新対象の取得に失敗しました: %w", err)
	}

	if len(postings) == 0 {
		b.logger.Info("エンゲージメント更新対象の投稿はありません")
		return nil
	}

	b.logger.Info("エンゲージメントバッチサイクルを開始します",
		slog.Int("target_postings", len(postings)),
	)

	// native_id → 投稿ID のマッピングを構築
	nativeToID := make(map[string]int64, len(postings))
	nativeIDs := make([]string, 0, len(postings))
	for _, p := range postings {
		if p.NativeID == "" {
			continue
		}
		nativeToID[p.NativeID] = p.ID
		nativeIDs = append(nativeIDs, p.NativeID)
	}

	var apiCallCount int
	var updatedCount int
	var hadError bool

	for i := 0; i < len(nativeIDs); i += maxIDsPerRequest {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if apiCallCount >= b.config.MaxCallsPerCycle {
			b.logger.Info("1サイクルあたりの最大API呼び出し回数に達しました",
				slog.Int("api_call_count", apiCallCount),
				slog.Int("max_calls_per_cycle", b.config.MaxCallsPerCycle),
			)
			break
		}

		// API呼び出しインターバル（初回は待たない）
		if apiCallCount > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.config.APIInterval):
			}
		}

		end := i + maxIDsPerRequest
		if end > len(nativeIDs) {
			end = len(nativeIDs)
		}
		chunk := nativeIDs[i:end]

		apiCallCount++

		counts, err := b.source.GetEngagementCounts(ctx, chunk)
		if err != nil {
			b.logger.Error("エンゲージメントAPIの呼び出しに失敗しました",
				slog.String("error", err.Error()),
				slog.Int("chunk_size", len(chunk)),
				slog.Int("api_call_count", apiCallCount),
			)
			hadError = true
			b.consecutiveErrors++
			backoff := calculateErrorBackoff(b.consecutiveErrors)
			if backoff > 0 {
				b.backoffUntil = time.Now().Add(backoff)
				b.logger.Warn("連続エラーによりバックオフを適用します",
					slog.Int("consecutive_errors", b.consecutiveErrors),
					slog.Duration("backoff_duration", backoff),
				)
				break
			}
			continue // このチャンクはスキップし次のチャンクへ（前回値維持）
		}

		now := time.Now()
		for _, nativeID := range chunk {
			postingID, ok := nativeToID[nativeID]
			if !ok {
				continue
			}

			// レスポンスに含まれないIDは削除済み投稿。
			// fetched_atだけ進めて次サイクルの対象から外す（数値は前回値維持）。
			eng, found := counts[nativeID]
			if !found {
				eng = engagementOf(postings, postingID)
			}

			if err := b.postingRepo.UpdateEngagement(ctx, postingID, eng, now); err != nil {
				b.logger.Error("エンゲージメント数の更新に失敗しました",
					slog.Int64("posting_id", postingID),
					slog.String("native_id", nativeID),
					slog.String("error", err.Error()),
				)
				continue
			}
			updatedCount++
		}
	}

	// エラーがなければ連続エラーカウントをリセット
	if !hadError {
		b.consecutiveErrors = 0
		b.backoffUntil = time.Time{}
	}

	b.metrics.RecordEngagementRefreshed(updatedCount)

	duration := time.Since(start)
	b.logger.Info("エンゲージメントバッチサイクルが完了しました",
		slog.Int("api_call_count", apiCallCount),
		slog.Int("updated_postings", updatedCount),
		slog.Int("target_postings", len(postings)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// engagementOf は対象リストから投稿の現在のエンゲージメント数を返す。
func engagementOf(postings []*model.Posting, id int64) model.Engagement {
	for _, p := range postings {
		if p.ID == id {
			return p.Engagement
		}
	}
	return model.Engagement{}
}

// calculateErrorBackoff は連続エラー回数に基づくバックオフ時間を計算する。
// 3回連続: 30分、5回連続: 1時間、10回連続: 6時間。
func calculateErrorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 6 * time.Hour
	case consecutiveErrors >= 5:
		return 1 * time.Hour
	case consecutiveErrors >= 3:
		return 30 * time.Minute
	default:
		return 0
	}
}
