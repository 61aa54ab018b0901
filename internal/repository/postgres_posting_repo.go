package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/jobwatch/internal/model"
)

// postingColumns は投稿テーブルのSELECT列リスト。scanPostingと対で使用する。
const postingColumns = `id, native_id, url, author, handle, text, category, budget,
       posted_at, likes, replies, reshares, engagement_fetched_at,
       content_fingerprint, is_duplicate, original_posting_id, created_at, updated_at`

// PostgresPostingRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostingRepo struct {
	db *sql.DB
}

// NewPostgresPostingRepo はPostgresPostingRepoを生成する。
func NewPostgresPostingRepo(db *sql.DB) *PostgresPostingRepo {
	return &PostgresPostingRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPosting は1行をmodel.Postingに読み取る。列順はpostingColumnsと一致させること。
func scanPosting(row rowScanner) (*model.Posting, error) {
	p := &model.Posting{}
	var budget sql.NullFloat64
	var postedAt, engagementFetchedAt sql.NullTime
	var originalID sql.NullInt64

	err := row.Scan(
		&p.ID, &p.NativeID, &p.URL, &p.Author, &p.Handle, &p.Text, &p.Category, &budget,
		&postedAt, &p.Engagement.Likes, &p.Engagement.Replies, &p.Engagement.Reshares,
		&engagementFetchedAt, &p.ContentFingerprint, &p.IsDuplicate, &originalID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if budget.Valid {
		p.Budget = &budget.Float64
	}
	if postedAt.Valid {
		p.PostedAt = &postedAt.Time
	}
	if engagementFetchedAt.Valid {
		p.EngagementFetchedAt = &engagementFetchedAt.Time
	}
	if originalID.Valid {
		p.OriginalPostingID = &originalID.Int64
	}

	return p, nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostingRepo) FindByID(ctx context.Context, id int64) (*model.Posting, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM postings WHERE id = $1`, id)

	p, err := scanPosting(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByNativeID はソース固有IDで投稿を検索する。見つからない場合はnilを返す。
func (r *PostgresPostingRepo) FindByNativeID(ctx context.Context, nativeID string) (*model.Posting, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM postings WHERE native_id = $1`, nativeID)

	p, err := scanPosting(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("native_idによる投稿の検索に失敗しました: %w", err)
	}
	return p, nil
}

// FindByURLSince は指定時刻以降に作成された同一URLの投稿を検索する。
func (r *PostgresPostingRepo) FindByURLSince(ctx context.Context, url string, since time.Time) (*model.Posting, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE url = $1 AND created_at >= $2
		 ORDER BY created_at ASC LIMIT 1`,
		url, since)

	p, err := scanPosting(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによる投稿の検索に失敗しました: %w", err)
	}
	return p, nil
}

// FindByFingerprintSince は指定時刻以降に作成された同一フィンガープリントの投稿を検索する。
func (r *PostgresPostingRepo) FindByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (*model.Posting, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE content_fingerprint = $1 AND created_at >= $2
		 ORDER BY created_at ASC LIMIT 1`,
		fingerprint, since)

	p, err := scanPosting(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィンガープリントによる投稿の検索に失敗しました: %w", err)
	}
	return p, nil
}

// ListRecentByCategory は指定カテゴリ・指定時刻以降の投稿をcreated_at降順で取得する。
func (r *PostgresPostingRepo) ListRecentByCategory(
	ctx context.Context,
	category model.Category,
	since time.Time,
	limit int,
	excludeDuplicates bool,
) ([]*model.Posting, error) {
	query := `SELECT ` + postingColumns + ` FROM postings
		 WHERE category = $1 AND created_at >= $2`
	if excludeDuplicates {
		query += ` AND is_duplicate = false`
	}
	query += ` ORDER BY created_at DESC LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, category, since, limit)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ別投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var postings []*model.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗しました: %w", err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}

	return postings, nil
}

// ListRecentByCategoryContaining は本文がいずれかのトークンを含む同カテゴリ・期間内・
// 非重複の投稿を取得する。トークン一致は大文字小文字を区別しないILIKE部分一致。
func (r *PostgresPostingRepo) ListRecentByCategoryContaining(
	ctx context.Context,
	category model.Category,
	since time.Time,
	tokens []string,
	limit int,
) ([]*model.Posting, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	var conds []string
	args := []interface{}{category, since}
	argIndex := 3
	for _, token := range tokens {
		conds = append(conds, fmt.Sprintf("text ILIKE $%d", argIndex))
		args = append(args, "%"+escapeLike(token)+"%")
		argIndex++
	}

	query := `SELECT ` + postingColumns + ` FROM postings
		 WHERE category = $1 AND created_at >= $2 AND is_duplicate = false
		 AND (` + strings.Join(conds, " OR ") + `)` +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("連絡先トークンによる投稿の検索に失敗しました: %w", err)
	}
	defer rows.Close()

	var postings []*model.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗しました: %w", err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}

	return postings, nil
}

// Create は投稿を作成し、採番されたIDをposting.IDに設定する。
// native_idの一意制約違反はmodel.ErrDuplicateNativeIDに変換される。
func (r *PostgresPostingRepo) Create(ctx context.Context, posting *model.Posting) error {
	var budget sql.NullFloat64
	if posting.Budget != nil {
		budget = sql.NullFloat64{Float64: *posting.Budget, Valid: true}
	}
	var originalID sql.NullInt64
	if posting.OriginalPostingID != nil {
		originalID = sql.NullInt64{Int64: *posting.OriginalPostingID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO postings (native_id, url, author, handle, text, category, budget,
		                       posted_at, likes, replies, reshares,
		                       content_fingerprint, is_duplicate, original_posting_id,
		                       created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id`,
		posting.NativeID, posting.URL, posting.Author, posting.Handle, posting.Text,
		posting.Category, budget, posting.PostedAt,
		posting.Engagement.Likes, posting.Engagement.Replies, posting.Engagement.Reshares,
		posting.ContentFingerprint, posting.IsDuplicate, originalID,
		posting.CreatedAt, posting.UpdatedAt,
	).Scan(&posting.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateNativeID
		}
		return fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	return nil
}

// MarkDuplicate は投稿を重複としてマークし、元投稿への参照を設定する。
// すでにマーク済みの投稿は変更しない（設定は1回のみ、取り消し不可）。
func (r *PostgresPostingRepo) MarkDuplicate(ctx context.Context, id, originalID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE postings
		 SET is_duplicate = true, original_posting_id = $2, updated_at = now()
		 WHERE id = $1 AND is_duplicate = false`,
		id, originalID)
	if err != nil {
		return fmt.Errorf("投稿の重複マークに失敗しました: %w", err)
	}
	return nil
}

// ListNeedingEngagementRefresh はエンゲージメント数の更新が必要な投稿を取得する。
// engagement_fetched_at IS NULL（未取得）を優先し、次に取得日時が古い順に処理する。
func (r *PostgresPostingRepo) ListNeedingEngagementRefresh(ctx context.Context, ttl time.Duration, limit int) ([]*model.Posting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE engagement_fetched_at IS NULL
		    OR engagement_fetched_at < now() - $1::interval
		 ORDER BY
		    CASE WHEN engagement_fetched_at IS NULL THEN 0 ELSE 1 END,
		    engagement_fetched_at ASC NULLS FIRST
		 LIMIT $2`,
		fmt.Sprintf("%d seconds", int(ttl.Seconds())), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("エンゲージメント更新対象の一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var postings []*model.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗しました: %w", err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("エンゲージメント更新対象の走査に失敗しました: %w", err)
	}

	return postings, nil
}

// UpdateEngagement は投稿のエンゲージメント数と取得日時を更新する。
func (r *PostgresPostingRepo) UpdateEngagement(ctx context.Context, id int64, eng model.Engagement, fetchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE postings
		 SET likes = $2, replies = $3, reshares = $4, engagement_fetched_at = $5, updated_at = now()
		 WHERE id = $1`,
		id, eng.Likes, eng.Replies, eng.Reshares, fetchedAt)
	if err != nil {
		return fmt.Errorf("エンゲージメント数の更新に失敗しました: %w", err)
	}
	return nil
}

// isUniqueViolation はPostgreSQLの一意制約違反（SQLSTATE 23505）かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// escapeLike はILIKEパターン内のメタ文字をエスケープする。
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// compile-time interface check
var _ PostingRepository = (*PostgresPostingRepo)(nil)
