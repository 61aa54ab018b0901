package notify

import (
	"strings"
	"testing"

	"github.com/hitoshi/jobwatch/internal/model"
)

// TestBuildMessage_Subject は件名がカテゴリ表示名を含むことをテストする。
func TestBuildMessage_Subject(t *testing.T) {
	msg := BuildMessage(&model.Posting{
		Category: model.CategoryVideoEditing,
		Handle:   "clientco",
		Text:     "Need a video editor",
		URL:      "https://x.com/p/1",
	})

	if msg.Subject != "New Video Editing Job!" {
		t.Errorf("Subject = %q, want %q", msg.Subject, "New Video Editing Job!")
	}
}

// TestBuildMessage_Body は本文が投稿者ハンドル・本文・URLを含むことをテストする。
func TestBuildMessage_Body(t *testing.T) {
	msg := BuildMessage(&model.Posting{
		Category: model.CategoryWebDevelopment,
		Handle:   "clientco",
		Text:     "Need a React developer",
		URL:      "https://x.com/p/2",
	})

	for _, want := range []string{"@clientco", "Need a React developer", "https://x.com/p/2"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("Body does not contain %q:\n%s", want, msg.Body)
		}
	}
}

// TestBuildMessage_BudgetLine は予算がある場合のみ予算行が含まれることをテストする。
func TestBuildMessage_BudgetLine(t *testing.T) {
	budget := 500.0
	withBudget := BuildMessage(&model.Posting{
		Category: model.CategoryGraphicDesign,
		Handle:   "clientco",
		Text:     "Logo design needed",
		URL:      "https://x.com/p/3",
		Budget:   &budget,
	})
	if !strings.Contains(withBudget.Body, "Budget: $500") {
		t.Errorf("Body does not contain budget line:\n%s", withBudget.Body)
	}

	withoutBudget := BuildMessage(&model.Posting{
		Category: model.CategoryGraphicDesign,
		Handle:   "clientco",
		Text:     "Logo design needed",
		URL:      "https://x.com/p/3",
	})
	if strings.Contains(withoutBudget.Body, "Budget:") {
		t.Errorf("Body should not contain budget line:\n%s", withoutBudget.Body)
	}
}

// TestBuildMessage_ExcerptTruncated は200文字を超える本文が切り詰められる
// ことをテストする。
func TestBuildMessage_ExcerptTruncated(t *testing.T) {
	long := strings.Repeat("a", 300)
	msg := BuildMessage(&model.Posting{
		Category: model.CategoryContentWriting,
		Handle:   "clientco",
		Text:     long,
		URL:      "https://x.com/p/4",
	})

	if strings.Contains(msg.Body, long) {
		t.Error("Body contains full text, want truncated excerpt")
	}
	if !strings.Contains(msg.Body, strings.Repeat("a", 200)+"...") {
		t.Error("Body does not contain truncated excerpt with ellipsis")
	}
}
