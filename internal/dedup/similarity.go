package dedup

// Similarity は2つのテキストの類似度を[0, 1]で返す。
// 最長共通部分列（LCS）に基づく比率 2*LCS(a,b) / (len(a)+len(b)) を使用する。
// 完全一致で1.0、共通文字なしで0.0。両方空の場合は1.0を返す。
// 比較対象はNormalizeForComparisonで正規化済みであることを想定する。
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	lcs := lcsLength([]rune(a), []rune(b))
	return 2.0 * float64(lcs) / float64(len([]rune(a))+len([]rune(b)))
}

// lcsLength は最長共通部分列の長さを動的計画法で計算する。
// 行を使い回すことでメモリをO(min(len(a), len(b)))に抑える。
// スキャン対象は件数上限（デフォルト50件）付きのため、O(n*m)でも実用上十分。
func lcsLength(a, b []rune) int {
	if len(b) < len(a) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)

	for i := 1; i <= len(b); i++ {
		for j := 1; j <= len(a); j++ {
			if b[i-1] == a[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(a)]
}
