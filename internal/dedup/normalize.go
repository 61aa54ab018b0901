package dedup

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

var (
	// nonWordRe は英数字・アンダースコア・空白以外の文字にマッチする。
	nonWordRe = regexp.MustCompile(`[^\w\s]`)
	// urlRe は本文中のURLにマッチする。
	urlRe = regexp.MustCompile(`https?://\S+|www\.\S+`)
	// mentionHashtagRe は@メンションと#ハッシュタグにマッチする。
	mentionHashtagRe = regexp.MustCompile(`[@#]\w+`)
	// emailRe はメールアドレスにマッチする。連絡先トークンの抽出に使用する。
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	// handleRe は5文字以上の@ハンドルにマッチする。短いハンドルは誤検知が多いため除外する。
	handleRe = regexp.MustCompile(`@\w{5,}`)
)

// Fingerprint は正規化した本文のSHA-256ハッシュを16進文字列で返す。
// 正規化: 小文字化、記号除去、空白の畳み込み。
// 書式だけが異なる完全コピーの再投稿を捕捉する。
func Fingerprint(text string) string {
	normalized := nonWordRe.ReplaceAllString(strings.ToLower(text), "")
	normalized = strings.Join(strings.Fields(normalized), " ")

	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}

// NormalizeForComparison はあいまい比較用に本文を正規化する。
// URL・@メンション・#ハッシュタグ・記号を除去し、ノイズを落として
// 意味のある語だけを残す。
func NormalizeForComparison(text string) string {
	text = strings.ToLower(text)
	text = urlRe.ReplaceAllString(text, "")
	text = mentionHashtagRe.ReplaceAllString(text, "")
	text = nonWordRe.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// ExtractContactTokens は本文からメールアドレスと@ハンドル（5文字以上）を抽出する。
// トークンは小文字化・重複排除され、順序は保証されない。
func ExtractContactTokens(text string) []string {
	seen := make(map[string]bool)
	var tokens []string

	for _, m := range emailRe.FindAllString(text, -1) {
		t := strings.ToLower(m)
		if !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}

	// メールアドレスのドメイン部が@ハンドルとして誤検出されないよう、
	// 抽出済みのメールアドレスを除去してからハンドルを探す
	remaining := emailRe.ReplaceAllString(text, "")
	for _, m := range handleRe.FindAllString(remaining, -1) {
		t := strings.ToLower(m)
		if !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}

	return tokens
}
