package notify

import (
	"fmt"
	"strings"

	"github.com/hitoshi/jobwatch/internal/model"
)

// excerptLength は本文抜粋の最大文字数。
const excerptLength = 200

// Message は全チャネル共通の通知メッセージを表す。
// チャネルアダプタはSubjectとBodyを各チャネルの形式に合わせて送信する。
type Message struct {
	Subject string
	Body    string
}

// categoryTitles はカテゴリごとの表示名。
var categoryTitles = map[model.Category]string{
	model.CategoryVideoEditing:   "Video Editing",
	model.CategoryWebDevelopment: "Web Development",
	model.CategoryContentWriting: "Content Writing",
	model.CategoryGraphicDesign:  "Graphic Design",
	model.CategoryMotionGraphics: "Motion Graphics",
}

// BuildMessage は投稿から通知メッセージを構築する。
// 本文は200文字で切り詰め、投稿者ハンドルと元投稿URLを含める。
func BuildMessage(posting *model.Posting) *Message {
	title := categoryTitles[posting.Category]
	if title == "" {
		title = string(posting.Category)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "New %s job posted by @%s\n\n", title, posting.Handle)
	fmt.Fprintf(&b, "%s\n", excerpt(posting.Text))
	if posting.Budget != nil {
		fmt.Fprintf(&b, "\nBudget: $%.0f\n", *posting.Budget)
	}
	fmt.Fprintf(&b, "\n%s\n", posting.URL)

	return &Message{
		Subject: fmt.Sprintf("New %s Job!", title),
		Body:    b.String(),
	}
}

// excerpt は本文を抜粋長で切り詰める。切り詰めた場合は省略記号を付ける。
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength]) + "..."
}
