package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/jobwatch/internal/model"
)

// PostgresDeliveryRepo はPostgreSQLを使用した配信台帳リポジトリ。
// (subscriber_id, posting_id)の一意制約が冪等性の根拠となる。
type PostgresDeliveryRepo struct {
	db *sql.DB
}

// NewPostgresDeliveryRepo はPostgresDeliveryRepoを生成する。
func NewPostgresDeliveryRepo(db *sql.DB) *PostgresDeliveryRepo {
	return &PostgresDeliveryRepo{db: db}
}

// Exists は(購読者, 投稿)ペアの配信記録が存在するかを返す。
func (r *PostgresDeliveryRepo) Exists(ctx context.Context, subscriberID, postingID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM delivery_records WHERE subscriber_id = $1 AND posting_id = $2
		 )`,
		subscriberID, postingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("配信記録の存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Claim は配信記録をINSERT ... ON CONFLICT DO NOTHINGで作成する。
// 作成できた場合はtrue、既存記録がある場合はfalseを返す。
// 並行するファンアウトが同一ペアを同時に処理しても片方だけが獲得できる。
func (r *PostgresDeliveryRepo) Claim(ctx context.Context, record *model.DeliveryRecord) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO delivery_records (id, subscriber_id, posting_id,
		                               attempted_channels, succeeded_channels, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (subscriber_id, posting_id) DO NOTHING`,
		record.ID, record.SubscriberID, record.PostingID,
		channelArray(record.AttemptedChannels), channelArray(record.SucceededChannels),
		record.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("配信記録の作成に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("配信記録の作成結果の取得に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// UpdateOutcome は配信試行の結果（試行チャネル/成功チャネル）を記録する。
func (r *PostgresDeliveryRepo) UpdateOutcome(ctx context.Context, id string, attempted, succeeded []model.Channel) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE delivery_records
		 SET attempted_channels = $2, succeeded_channels = $3
		 WHERE id = $1`,
		id, channelArray(attempted), channelArray(succeeded))
	if err != nil {
		return fmt.Errorf("配信結果の記録に失敗しました: %w", err)
	}
	return nil
}

// channelArray は[]model.Channelをpq.StringArrayに変換する。
func channelArray(channels []model.Channel) pq.StringArray {
	arr := make(pq.StringArray, 0, len(channels))
	for _, c := range channels {
		arr = append(arr, string(c))
	}
	return arr
}

// compile-time interface check
var _ DeliveryRepository = (*PostgresDeliveryRepo)(nil)
