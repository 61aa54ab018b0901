package model

import "time"

// Subscriber は通知の受信者を表す。
// 購読者データは外部のアカウントシステムが所有し、本コアからは読み取り専用。
type Subscriber struct {
	ID           int64
	Categories   []Category // 通知を希望するカテゴリ
	Keywords     []string   // キーワードフィルタ（空なら全件マッチ）。大文字小文字を区別しない部分一致。
	IsActive     bool
	EmailAddress string // 空の場合はemailチャネル無効
	ChatHandle   string // 空の場合はchatチャネル無効
	PushEndpoint string // 空の場合はpushチャネル無効
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WantsCategory は購読者が指定カテゴリを希望しているかを返す。
func (s *Subscriber) WantsCategory(c Category) bool {
	for _, v := range s.Categories {
		if v == c {
			return true
		}
	}
	return false
}

// HasChannel はいずれかの通知チャネルが有効かを返す。
func (s *Subscriber) HasChannel() bool {
	return s.EmailAddress != "" || s.ChatHandle != "" || s.PushEndpoint != ""
}
