// Package match は新規投稿と購読者のマッチングを提供する。
package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/jobwatch/internal/model"
	"github.com/hitoshi/jobwatch/internal/repository"
)

// Matcher は投稿に対して通知すべき購読者を決定する。
// カテゴリ一致とキーワードフィルタの2段階で絞り込む。
type Matcher struct {
	subscriberRepo repository.SubscriberRepository
	logger         *slog.Logger
}

// NewMatcher はMatcherの新しいインスタンスを生成する。
func NewMatcher(subscriberRepo repository.SubscriberRepository, logger *slog.Logger) *Matcher {
	return &Matcher{
		subscriberRepo: subscriberRepo,
		logger:         logger,
	}
}

// Match は投稿のカテゴリを希望するアクティブな購読者のうち、
// キーワードフィルタを満たすものを返す。
// キーワードが空の購読者はカテゴリ一致だけで対象になる。
// キーワードがある場合は、いずれか1つが本文に含まれれば対象（OR条件）。
// 一致は大文字小文字を区別しない部分一致。
func (m *Matcher) Match(ctx context.Context, posting *model.Posting) ([]*model.Subscriber, error) {
	subscribers, err := m.subscriberRepo.ListActiveByCategory(ctx, posting.Category)
	if err != nil {
		return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}

	text := strings.ToLower(posting.Text)

	matched := make([]*model.Subscriber, 0, len(subscribers))
	for _, s := range subscribers {
		if !matchesKeywords(text, s.Keywords) {
			continue
		}
		matched = append(matched, s)
	}

	m.logger.Debug("購読者マッチング完了",
		slog.Int64("posting_id", posting.ID),
		slog.String("category", string(posting.Category)),
		slog.Int("candidates", len(subscribers)),
		slog.Int("matched", len(matched)),
	)

	return matched, nil
}

// matchesKeywords は本文（小文字化済み）がキーワードフィルタを満たすかを返す。
// キーワードが空の場合は常にtrue。空白のみのキーワードは無視する。
func matchesKeywords(loweredText string, keywords []string) bool {
	hasFilter := false
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		hasFilter = true
		if strings.Contains(loweredText, strings.ToLower(kw)) {
			return true
		}
	}
	return !hasFilter
}
