package dedup

import (
	"math"
	"testing"
)

// TestSimilarity_Identical は同一テキストの類似度が1.0になることをテストする。
func TestSimilarity_Identical(t *testing.T) {
	got := Similarity("need a video editor", "need a video editor")
	if got != 1.0 {
		t.Errorf("Similarity = %v, want 1.0", got)
	}
}

// TestSimilarity_BothEmpty は両方空の場合に1.0を返すことをテストする。
func TestSimilarity_BothEmpty(t *testing.T) {
	got := Similarity("", "")
	if got != 1.0 {
		t.Errorf("Similarity = %v, want 1.0", got)
	}
}

// TestSimilarity_OneEmpty は片方が空の場合に0.0を返すことをテストする。
func TestSimilarity_OneEmpty(t *testing.T) {
	got := Similarity("need a video editor", "")
	if got != 0.0 {
		t.Errorf("Similarity = %v, want 0.0", got)
	}
}

// TestSimilarity_NoCommonCharacters は共通文字がない場合に0.0を返すことをテストする。
func TestSimilarity_NoCommonCharacters(t *testing.T) {
	got := Similarity("abc", "xyz")
	if got != 0.0 {
		t.Errorf("Similarity = %v, want 0.0", got)
	}
}

// TestSimilarity_KnownRatio は既知のLCS比率が正しく計算されることをテストする。
// "abcd"と"abxd"のLCSは"abd"（3文字）なので 2*3/(4+4) = 0.75。
func TestSimilarity_KnownRatio(t *testing.T) {
	got := Similarity("abcd", "abxd")
	want := 0.75
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Similarity = %v, want %v", got, want)
	}
}

// TestSimilarity_Symmetric は引数の順序によらず同じ値を返すことをテストする。
func TestSimilarity_Symmetric(t *testing.T) {
	a := "need a skilled video editor for youtube content"
	b := "looking for video editor youtube"

	if Similarity(a, b) != Similarity(b, a) {
		t.Errorf("Similarity is not symmetric: %v != %v", Similarity(a, b), Similarity(b, a))
	}
}

// TestSimilarity_Paraphrase は言い換えられた類似テキストが高い類似度になり、
// 無関係なテキストが低い類似度になることをテストする。
func TestSimilarity_Paraphrase(t *testing.T) {
	base := NormalizeForComparison("Need a video editor for my YouTube channel, $500 budget, DM me")
	paraphrase := NormalizeForComparison("Need a video editor for my YouTube channel $500 budget DM me!")
	unrelated := NormalizeForComparison("Selling a used bicycle in great condition")

	if sim := Similarity(base, paraphrase); sim < 0.9 {
		t.Errorf("paraphrase similarity = %v, want >= 0.9", sim)
	}
	if sim := Similarity(base, unrelated); sim > 0.6 {
		t.Errorf("unrelated similarity = %v, want <= 0.6", sim)
	}
}
