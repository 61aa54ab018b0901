package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/jobwatch/internal/model"
)

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
// 購読者行は外部のアカウントシステムが所有するため読み取り専用。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

// ListActiveByCategory は指定カテゴリを希望するアクティブな購読者を取得する。
func (r *PostgresSubscriberRepo) ListActiveByCategory(ctx context.Context, category model.Category) ([]*model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, categories, keywords, is_active,
		        email_address, chat_handle, push_endpoint, created_at, updated_at
		 FROM subscribers
		 WHERE is_active = true AND $1 = ANY(categories)`,
		category,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブ購読者の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subscribers []*model.Subscriber
	for rows.Next() {
		s := &model.Subscriber{}
		var categories, keywords pq.StringArray

		if err := rows.Scan(
			&s.ID, &categories, &keywords, &s.IsActive,
			&s.EmailAddress, &s.ChatHandle, &s.PushEndpoint, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("購読者行の読み取りに失敗しました: %w", err)
		}

		s.Categories = make([]model.Category, 0, len(categories))
		for _, c := range categories {
			s.Categories = append(s.Categories, model.Category(c))
		}
		s.Keywords = []string(keywords)

		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読者一覧の走査に失敗しました: %w", err)
	}

	return subscribers, nil
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
