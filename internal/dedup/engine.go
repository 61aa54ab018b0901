// Package dedup は投稿の多段重複判定エンジンを提供する。
// URL一致 → フィンガープリント一致 → あいまい類似 → 連絡先一致の4段を
// コストの低い順に実行し、最初の一致で短絡する。
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/jobwatch/internal/model"
	"github.com/hitoshi/jobwatch/internal/repository"
)

// Tier は重複と判定した段を表す。ログとメトリクスに使用する。
type Tier string

const (
	// TierURL は正規URLの完全一致による判定。
	TierURL Tier = "url"
	// TierFingerprint はコンテンツフィンガープリントの一致による判定。
	TierFingerprint Tier = "fingerprint"
	// TierFuzzy はあいまい類似度による判定。
	TierFuzzy Tier = "fuzzy"
	// TierContact は連絡先一致＋類似度による判定。
	TierContact Tier = "contact"
)

// Result は重複判定の結果を表す。
// Duplicateがtrueの場合、OriginalIDは非重複の元投稿を指す。
type Result struct {
	Duplicate  bool
	OriginalID int64
	Tier       Tier
}

// Config は重複判定エンジンの調整パラメータ。
type Config struct {
	// LookbackWindow は重複チェックの対象期間（デフォルト: 48時間）。
	LookbackWindow time.Duration
	// SimilarityThreshold はあいまい判定の類似度しきい値（デフォルト: 0.85）。
	SimilarityThreshold float64
	// ContactSimilarityThreshold は連絡先一致時の緩和しきい値（デフォルト: 0.70）。
	// 連絡先の一致が同一投稿者である事前確率を上げるため、言い換えを許容する。
	ContactSimilarityThreshold float64
	// FuzzyScanLimit はあいまい判定のスキャン対象件数上限（デフォルト: 50）。
	FuzzyScanLimit int
	// ContactScanLimit は連絡先一致判定のスキャン対象件数上限（デフォルト: 10）。
	ContactScanLimit int
	// BudgetRatio は予算互換と見なす比率の下限（デフォルト: 0.8）。
	BudgetRatio float64
}

// DefaultConfig はデフォルトの重複判定設定を返す。
func DefaultConfig() Config {
	return Config{
		LookbackWindow:             48 * time.Hour,
		SimilarityThreshold:        0.85,
		ContactSimilarityThreshold: 0.70,
		FuzzyScanLimit:             50,
		ContactScanLimit:           10,
		BudgetRatio:                0.8,
	}
}

// Engine は4段の重複判定を実行する。
// 読み取り専用であり、Posting Storeへの書き込みは行わない。
// 重複マークの書き込みはインジェストコーディネーターの責務。
type Engine struct {
	postingRepo repository.PostingRepository
	logger      *slog.Logger
	config      Config
}

// NewEngine はEngineの新しいインスタンスを生成する。
func NewEngine(postingRepo repository.PostingRepository, logger *slog.Logger, config Config) *Engine {
	return &Engine{
		postingRepo: postingRepo,
		logger:      logger,
		config:      config,
	}
}

// Evaluate は候補が既存投稿の重複かを判定する。
// 4段のチェックをコストの低い順に実行し、最初の一致で短絡する。
// 本文が空の候補はValidationErrorで即座に失敗する。
// ストア読み取りの失敗は呼び出し元へ伝播する（リトライは呼び出し元の責務）。
func (e *Engine) Evaluate(ctx context.Context, candidate *model.Candidate) (Result, error) {
	if candidate.Text == "" {
		return Result{}, model.NewValidationError(candidate.NativeID, "本文が空です")
	}

	since := time.Now().Add(-e.config.LookbackWindow)

	// 第1段: URL完全一致（インデックス参照のみ、偽陽性なし）
	if candidate.URL != "" {
		existing, err := e.postingRepo.FindByURLSince(ctx, candidate.URL, since)
		if err != nil {
			return Result{}, err
		}
		if existing != nil {
			return e.duplicateOf(existing, TierURL), nil
		}
	}

	// 第2段: フィンガープリント一致（URLが違っても本文の完全コピーを捕捉）
	fingerprint := Fingerprint(candidate.Text)
	existing, err := e.postingRepo.FindByFingerprintSince(ctx, fingerprint, since)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return e.duplicateOf(existing, TierFingerprint), nil
	}

	// 第3段: あいまい類似（言い換えられた再投稿を捕捉。最もコストが高い）
	result, err := e.checkFuzzy(ctx, candidate, since)
	if err != nil {
		return Result{}, err
	}
	if result.Duplicate {
		return result, nil
	}

	// 第4段: 連絡先一致（同一投稿者の再投稿を緩いしきい値で捕捉）
	result, err = e.checkContact(ctx, candidate, since)
	if err != nil {
		return Result{}, err
	}
	if result.Duplicate {
		return result, nil
	}

	return Result{}, nil
}

// checkFuzzy は同カテゴリ・期間内の非重複投稿に対してあいまい類似判定を行う。
// スキャン対象は直近FuzzyScanLimit件に制限され、コストはコーパス総量に依存しない。
// 類似度がしきい値以上でも、予算の互換性がない場合は重複としない（予算拒否）。
func (e *Engine) checkFuzzy(ctx context.Context, candidate *model.Candidate, since time.Time) (Result, error) {
	recent, err := e.postingRepo.ListRecentByCategory(ctx, candidate.Category, since, e.config.FuzzyScanLimit, true)
	if err != nil {
		return Result{}, err
	}

	candidateText := NormalizeForComparison(candidate.Text)

	for _, existing := range recent {
		similarity := Similarity(candidateText, NormalizeForComparison(existing.Text))
		if similarity < e.config.SimilarityThreshold {
			continue
		}
		if !e.budgetsCompatible(candidate.Budget, existing.Budget) {
			e.logger.Info("類似度はしきい値以上ですが予算が非互換のため重複としません",
				slog.String("native_id", candidate.NativeID),
				slog.Int64("existing_id", existing.ID),
				slog.Float64("similarity", similarity),
			)
			continue
		}
		return e.duplicateOf(existing, TierFuzzy), nil
	}

	return Result{}, nil
}

// checkContact は候補本文から連絡先トークンを抽出し、同じ連絡先を含む
// 同カテゴリ・期間内・非重複の投稿に対して緩和しきい値で類似判定を行う。
func (e *Engine) checkContact(ctx context.Context, candidate *model.Candidate, since time.Time) (Result, error) {
	tokens := ExtractContactTokens(candidate.Text)
	if len(tokens) == 0 {
		return Result{}, nil
	}

	matches, err := e.postingRepo.ListRecentByCategoryContaining(ctx, candidate.Category, since, tokens, e.config.ContactScanLimit)
	if err != nil {
		return Result{}, err
	}

	candidateText := NormalizeForComparison(candidate.Text)

	for _, existing := range matches {
		similarity := Similarity(candidateText, NormalizeForComparison(existing.Text))
		if similarity >= e.config.ContactSimilarityThreshold {
			return e.duplicateOf(existing, TierContact), nil
		}
	}

	return Result{}, nil
}

// budgetsCompatible は2つの予算が互換かを判定する。
// どちらかが未記載の場合は互換と見なす。両方ある場合は小さい方/大きい方が
// BudgetRatio以上であれば互換。本文が同じでも予算が大きく異なる投稿は別案件。
func (e *Engine) budgetsCompatible(a, b *float64) bool {
	if a == nil || b == nil {
		return true
	}
	if *a <= 0 || *b <= 0 {
		return true
	}

	smaller, larger := *a, *b
	if smaller > larger {
		smaller, larger = larger, smaller
	}
	return smaller/larger >= e.config.BudgetRatio
}

// duplicateOf は一致した投稿を指すResultを構築する。
// 一致先が既に重複の場合はその元投稿を指す（スター構造の維持）。
// 非重複のみをスキャンするため通常は発生しないが、URL/フィンガープリント段では起こり得る。
func (e *Engine) duplicateOf(existing *model.Posting, tier Tier) Result {
	originalID := existing.ID
	if existing.IsDuplicate && existing.OriginalPostingID != nil {
		originalID = *existing.OriginalPostingID
	}
	return Result{Duplicate: true, OriginalID: originalID, Tier: tier}
}
