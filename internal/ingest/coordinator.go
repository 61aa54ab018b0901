package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/jobwatch/internal/dedup"
	"github.com/hitoshi/jobwatch/internal/metrics"
	"github.com/hitoshi/jobwatch/internal/model"
	"github.com/hitoshi/jobwatch/internal/repository"
)

// DuplicateEvaluator は重複判定のインターフェース。
type DuplicateEvaluator interface {
	Evaluate(ctx context.Context, candidate *model.Candidate) (dedup.Result, error)
}

// SubscriberMatcher は購読者マッチングのインターフェース。
type SubscriberMatcher interface {
	Match(ctx context.Context, posting *model.Posting) ([]*model.Subscriber, error)
}

// NotificationDispatcher は通知ファンアウトのインターフェース。
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, posting *model.Posting, subscribers []*model.Subscriber)
}

// ContentSanitizer は候補本文のサニタイズのインターフェース。
type ContentSanitizer interface {
	Sanitize(raw string) string
}

// Coordinator は1回のインジェストサイクルを統括する。
// カテゴリごとのワーカーをsemaphoreパターンで並列実行し、
// Pull → サニタイズ → 検証 → 重複判定 → 保存 → マッチ → 通知 の
// パイプラインを候補単位で処理する。
type Coordinator struct {
	source      Source
	sanitizer   ContentSanitizer
	evaluator   DuplicateEvaluator
	matcher     SubscriberMatcher
	dispatcher  NotificationDispatcher
	postingRepo repository.PostingRepository
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	limiter     *rate.Limiter

	batchSize      int
	maxConcurrency int
}

// NewCoordinator はCoordinatorの新しいインスタンスを生成する。
// pullRateはカテゴリごとのPull呼び出しレート（req/sec）。
// maxConcurrencyが0以下の場合はデフォルト値3を使用する。
func NewCoordinator(
	source Source,
	sanitizer ContentSanitizer,
	evaluator DuplicateEvaluator,
	matcher SubscriberMatcher,
	dispatcher NotificationDispatcher,
	postingRepo repository.PostingRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	pullRate float64,
	batchSize int,
	maxConcurrency int,
) *Coordinator {
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Coordinator{
		source:         source,
		sanitizer:      sanitizer,
		evaluator:      evaluator,
		matcher:        matcher,
		dispatcher:     dispatcher,
		postingRepo:    postingRepo,
		metrics:        collector,
		logger:         logger,
		limiter:        rate.NewLimiter(rate.Limit(pullRate), 1),
		batchSize:      batchSize,
		maxConcurrency: maxConcurrency,
	}
}

// RunOnce は全カテゴリのインジェストを1回実行する。
// カテゴリ単位・候補単位の失敗はログに記録して継続し、サイクル全体は中断しない。
func (c *Coordinator) RunOnce(ctx context.Context) error {
	start := time.Now()

	c.logger.Info("インジェストサイクルを開始します",
		slog.Int("categories", len(model.Categories)),
		slog.Int("batch_size", c.batchSize),
	)

	sem := make(chan struct{}, c.maxConcurrency)
	var wg sync.WaitGroup

	for _, category := range model.Categories {
		wg.Add(1)
		sem <- struct{}{}

		go func(category model.Category) {
			defer wg.Done()
			defer func() { <-sem }()

			c.runCategory(ctx, category)
		}(category)
	}

	wg.Wait()

	duration := time.Since(start)
	c.metrics.RecordRunLatency(duration)
	c.logger.Info("インジェストサイクルが完了しました",
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return ctx.Err()
}

// runCategory は単一カテゴリの候補を取得して処理する。
// Pull呼び出しはレートリミッタでスクレイパーAPIへの礼儀的な間隔を保つ。
func (c *Coordinator) runCategory(ctx context.Context, category model.Category) {
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}

	candidates, err := c.source.Pull(ctx, category, c.batchSize)
	if err != nil {
		c.logger.Error("候補の取得に失敗しました",
			slog.String("category", string(category)),
			slog.String("error", err.Error()),
		)
		return
	}

	if len(candidates) == 0 {
		return
	}

	// バッチ内の同一native_idは先勝ちで1件に畳む
	seen := make(map[string]bool, len(candidates))

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return
		}
		if candidate.NativeID != "" && seen[candidate.NativeID] {
			continue
		}
		seen[candidate.NativeID] = true

		c.metrics.RecordCandidateReceived(string(category))
		c.processCandidate(ctx, candidate)
	}
}

// processCandidate は単一候補のパイプラインを実行する。
// サニタイズ → 検証 → 重複判定 → 保存。非重複の場合のみマッチと通知を行う。
// ストアの一時的な失敗は1回だけリトライし、それでも失敗したらスキップする。
func (c *Coordinator) processCandidate(ctx context.Context, candidate *model.Candidate) {
	candidate.Text = c.sanitizer.Sanitize(candidate.Text)

	if reason := validate(candidate); reason != "" {
		c.metrics.RecordValidationFailure(reason)
		c.logger.Warn("候補の検証に失敗しました",
			slog.String("native_id", candidate.NativeID),
			slog.String("reason", reason),
		)
		return
	}

	result, err := c.evaluateWithRetry(ctx, candidate)
	if err != nil {
		if model.IsValidationError(err) {
			c.metrics.RecordValidationFailure("本文が空です")
			return
		}
		c.logger.Error("重複判定に失敗したため候補をスキップします",
			slog.String("native_id", candidate.NativeID),
			slog.String("error", err.Error()),
		)
		return
	}

	posting := buildPosting(candidate, result)

	if err := c.createWithRetry(ctx, posting); err != nil {
		if errors.Is(err, model.ErrDuplicateNativeID) {
			// 同一native_idが既に保存済み。再スクレイプの収束であり正常
			c.logger.Debug("native_idが保存済みのためスキップします",
				slog.String("native_id", candidate.NativeID),
			)
			return
		}
		c.logger.Error("投稿の保存に失敗したため候補をスキップします",
			slog.String("native_id", candidate.NativeID),
			slog.String("error", err.Error()),
		)
		return
	}

	if result.Duplicate {
		c.metrics.RecordDuplicateDetected(string(result.Tier))
		c.logger.Info("重複投稿として保存しました",
			slog.Int64("posting_id", posting.ID),
			slog.Int64("original_id", result.OriginalID),
			slog.String("tier", string(result.Tier)),
		)
		return
	}

	c.metrics.RecordPostingInserted(string(posting.Category))

	subscribers, err := c.matcher.Match(ctx, posting)
	if err != nil {
		c.logger.Error("購読者マッチングに失敗しました",
			slog.Int64("posting_id", posting.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	c.dispatcher.Dispatch(ctx, posting, subscribers)
}

// evaluateWithRetry は重複判定を実行し、一時的な失敗を1回だけリトライする。
// ValidationErrorはリトライしない。
func (c *Coordinator) evaluateWithRetry(ctx context.Context, candidate *model.Candidate) (dedup.Result, error) {
	result, err := c.evaluator.Evaluate(ctx, candidate)
	if err == nil || model.IsValidationError(err) || ctx.Err() != nil {
		return result, err
	}

	c.logger.Warn("重複判定に失敗したためリトライします",
		slog.String("native_id", candidate.NativeID),
		slog.String("error", err.Error()),
	)
	return c.evaluator.Evaluate(ctx, candidate)
}

// createWithRetry は投稿を保存し、一時的な失敗を1回だけリトライする。
// ErrDuplicateNativeIDはリトライしない。
func (c *Coordinator) createWithRetry(ctx context.Context, posting *model.Posting) error {
	err := c.postingRepo.Create(ctx, posting)
	if err == nil || errors.Is(err, model.ErrDuplicateNativeID) || ctx.Err() != nil {
		return err
	}

	c.logger.Warn("投稿の保存に失敗したためリトライします",
		slog.String("native_id", posting.NativeID),
		slog.String("error", err.Error()),
	)
	return c.postingRepo.Create(ctx, posting)
}

// validate は候補の必須項目を検証し、不備があれば理由を返す。
func validate(candidate *model.Candidate) string {
	if candidate.NativeID == "" {
		return "native_idが空です"
	}
	if candidate.Text == "" {
		return "本文が空です"
	}
	if candidate.URL == "" {
		return "URLが空です"
	}
	if !candidate.Category.IsValid() {
		return "不明なカテゴリです"
	}
	return ""
}

// buildPosting は候補と重複判定結果からPostingを構築する。
func buildPosting(candidate *model.Candidate, result dedup.Result) *model.Posting {
	now := time.Now()
	posting := &model.Posting{
		NativeID:           candidate.NativeID,
		URL:                candidate.URL,
		Author:             candidate.Author,
		Handle:             candidate.Handle,
		Text:               candidate.Text,
		Category:           candidate.Category,
		Budget:             candidate.Budget,
		PostedAt:           candidate.PostedAt,
		Engagement:         candidate.Engagement,
		ContentFingerprint: dedup.Fingerprint(candidate.Text),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if result.Duplicate {
		posting.IsDuplicate = true
		originalID := result.OriginalID
		posting.OriginalPostingID = &originalID
	}
	return posting
}
