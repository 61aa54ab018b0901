// Package model はドメインモデルを定義する。
package model

import "time"

// Engagement は投稿のエンゲージメント数（いいね/リプライ/リポスト）を表す。
// スクレイプ時点のスナップショットとして保存され、バッチで更新される。
type Engagement struct {
	Likes    int
	Replies  int
	Reshares int
}

// Posting は永続化された求人投稿を表す。
// 重複の場合はOriginalPostingIDが元投稿を参照する（1段のスター構造であり、
// 重複が重複を参照するチェーンは作らない）。
type Posting struct {
	ID                  int64
	NativeID            string // ソース固有ID（ツイートID等）。一意かつ不変。
	URL                 string // 正規化済みの投稿URL
	Author              string // 表示名
	Handle              string // @ハンドル
	Text                string // サニタイズ済みの本文
	Category            Category
	Budget              *float64 // 予算（記載がない場合はnil）
	PostedAt            *time.Time
	Engagement          Engagement
	EngagementFetchedAt *time.Time
	ContentFingerprint  string // 正規化本文のSHA-256
	IsDuplicate         bool
	OriginalPostingID   *int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Candidate はスクレイパーから受け取った未検証・未保存の投稿データを表す。
// 重複判定と保存を経てPostingになる。
type Candidate struct {
	NativeID   string
	URL        string
	Author     string
	Handle     string
	Text       string
	Category   Category
	Budget     *float64
	PostedAt   *time.Time
	Engagement Engagement
}
