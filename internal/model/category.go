package model

// Category は求人投稿のカテゴリを表す。固定の列挙。
type Category string

const (
	// CategoryVideoEditing は動画編集カテゴリ。
	CategoryVideoEditing Category = "video_editing"
	// CategoryWebDevelopment はWeb開発カテゴリ。
	CategoryWebDevelopment Category = "web_development"
	// CategoryContentWriting はライティングカテゴリ。
	CategoryContentWriting Category = "content_writing"
	// CategoryGraphicDesign はグラフィックデザインカテゴリ。
	CategoryGraphicDesign Category = "graphic_design"
	// CategoryMotionGraphics はモーショングラフィックスカテゴリ。
	CategoryMotionGraphics Category = "motion_graphics"
)

// Categories は全カテゴリの一覧。インジェストはこの順で各カテゴリを処理する。
var Categories = []Category{
	CategoryVideoEditing,
	CategoryWebDevelopment,
	CategoryContentWriting,
	CategoryGraphicDesign,
	CategoryMotionGraphics,
}

// IsValid はカテゴリが列挙に含まれるかを返す。
func (c Category) IsValid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}
