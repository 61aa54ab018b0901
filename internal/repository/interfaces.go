// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/jobwatch/internal/model"
)

// PostingRepository は投稿データの永続化インターフェース。
// 重複判定エンジンからの読み取りとインジェストコーディネーターからの書き込みに使用される。
type PostingRepository interface {
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Posting, error)

	// FindByNativeID はソース固有IDで投稿を検索する。見つからない場合はnilを返す。
	FindByNativeID(ctx context.Context, nativeID string) (*model.Posting, error)

	// FindByURLSince は指定時刻以降に作成された同一URLの投稿を検索する。
	// 重複判定の第1段（最優先・最安価）。見つからない場合はnilを返す。
	FindByURLSince(ctx context.Context, url string, since time.Time) (*model.Posting, error)

	// FindByFingerprintSince は指定時刻以降に作成された同一フィンガープリントの投稿を検索する。
	// 重複判定の第2段。見つからない場合はnilを返す。
	FindByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (*model.Posting, error)

	// ListRecentByCategory は指定カテゴリ・指定時刻以降の投稿をcreated_at降順で取得する。
	// excludeDuplicatesがtrueの場合は非重複投稿のみを返す。あいまい判定のスキャン対象取得に使用する。
	ListRecentByCategory(ctx context.Context, category model.Category, since time.Time, limit int, excludeDuplicates bool) ([]*model.Posting, error)

	// ListRecentByCategoryContaining は本文がいずれかのトークンを含む（大文字小文字を区別しない）
	// 同カテゴリ・期間内・非重複の投稿を取得する。連絡先一致判定に使用する。
	ListRecentByCategoryContaining(ctx context.Context, category model.Category, since time.Time, tokens []string, limit int) ([]*model.Posting, error)

	// Create は投稿を作成し、採番されたIDをposting.IDに設定する。
	// native_idの一意制約違反の場合はmodel.ErrDuplicateNativeIDを返す。
	Create(ctx context.Context, posting *model.Posting) error

	// MarkDuplicate は投稿を重複としてマークし、元投稿への参照を設定する。
	// 一度設定されたら取り消されない。
	MarkDuplicate(ctx context.Context, id, originalID int64) error

	// ListNeedingEngagementRefresh はエンゲージメント数の更新が必要な投稿を取得する。
	// engagement_fetched_at IS NULL（未取得）を優先し、次に古い順に処理する。
	ListNeedingEngagementRefresh(ctx context.Context, ttl time.Duration, limit int) ([]*model.Posting, error)

	// UpdateEngagement は投稿のエンゲージメント数と取得日時を更新する。
	UpdateEngagement(ctx context.Context, id int64, eng model.Engagement, fetchedAt time.Time) error
}

// SubscriberRepository は購読者データの読み取りインターフェース。
// 購読者は外部のアカウントシステムが所有するため、本コアからは読み取り専用。
type SubscriberRepository interface {
	// ListActiveByCategory は指定カテゴリを希望するアクティブな購読者を取得する。
	ListActiveByCategory(ctx context.Context, category model.Category) ([]*model.Subscriber, error)
}

// DeliveryRepository は配信台帳の永続化インターフェース。
// (subscriber_id, posting_id)の一意制約により冪等性を保証する。
type DeliveryRepository interface {
	// Exists は(購読者, 投稿)ペアの配信記録が存在するかを返す。
	Exists(ctx context.Context, subscriberID, postingID int64) (bool, error)

	// Claim は配信記録をINSERT ... ON CONFLICT DO NOTHINGで作成する。
	// 作成できた場合はtrue、既存記録がありスキップすべき場合はfalseを返す。
	// check-then-insertを単一文で行うため、並行ファンアウトでも二重配信されない。
	Claim(ctx context.Context, record *model.DeliveryRecord) (bool, error)

	// UpdateOutcome は配信試行の結果（試行チャネル/成功チャネル）を記録する。
	UpdateOutcome(ctx context.Context, id string, attempted, succeeded []model.Channel) error
}
