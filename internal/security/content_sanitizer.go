// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はスクレイプした候補本文に紛れ込んだHTMLを除去し、
// 通知本文への出力やフィンガープリント計算を汚染から守る。
// 投稿はプレーンテキストとして扱うため、bluemondayのStrictPolicyで
// 全タグを除去する。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は候補本文のサニタイズ機能のインターフェースを定義する。
// 候補の検証直後、フィンガープリント計算と保存の前に使用される。
type ContentSanitizerService interface {
	// Sanitize は本文から全てのHTMLタグを除去したプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（許可タグなし）を使用し、タグ除去後にHTMLエンティティを
// 元の文字に復元する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は本文から全てのHTMLタグを除去したプレーンテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	// StrictPolicyはタグを除去した上で残りをエスケープするため、
	// プレーンテキストとして保存する前にエンティティを復元する。
	return html.UnescapeString(s.policy.Sanitize(raw))
}
