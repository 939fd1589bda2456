package speech

// AlignmentResult 两个词序列的全局对齐结果
// MapAtoB[i] 为 A 序列第 i 个词对应的 B 序列索引，Gap 表示无对应；
// 对每个非 gap 的 MapAtoB[i] = j，恒有 MapBtoA[j] = i
type AlignmentResult struct {
	MapAtoB []int
	MapBtoA []int
	Score   float64
}

// Gap 序列对齐中的空位标记
const Gap = -1

// SequenceAligner 全局序列对齐器（Needleman-Wunsch）
// 在字符级对齐不可用或需要用独立转写修正时间时，计算两个词序列
// （如送合成的词 vs 转写识别出的词）之间的最优对应关系
type SequenceAligner struct {
	gapCost        float64
	similarityHigh float64
	similarityLow  float64
}

// NewSequenceAligner 创建序列对齐器实例
// gap 代价低于最差替换代价（3），使空位优先于强行错配
func NewSequenceAligner(cfg Config) *SequenceAligner {
	gapCost := cfg.GapCost
	if gapCost <= 0 {
		gapCost = DefaultConfig().GapCost
	}
	high, low := cfg.SimilarityHigh, cfg.SimilarityLow
	if high <= 0 {
		high = DefaultConfig().SimilarityHigh
	}
	if low <= 0 {
		low = DefaultConfig().SimilarityLow
	}
	return &SequenceAligner{gapCost: gapCost, similarityHigh: high, similarityLow: low}
}

// Align 计算词序列 a 与 b 的全局对齐
// 标准 DP 矩阵填充（O(m·n) 时间与空间）+ 回溯。代价均非负，Score 恒 >= 0
func (sa *SequenceAligner) Align(a, b []string) AlignmentResult {
	m, n := len(a), len(b)

	mapAtoB := make([]int, m)
	mapBtoA := make([]int, n)
	for i := range mapAtoB {
		mapAtoB[i] = Gap
	}
	for j := range mapBtoA {
		mapBtoA[j] = Gap
	}
	if m == 0 || n == 0 {
		return AlignmentResult{MapAtoB: mapAtoB, MapBtoA: mapBtoA, Score: float64(m+n) * sa.gapCost}
	}

	normA := make([]string, m)
	for i, s := range a {
		normA[i] = normalizeToken(s)
	}
	normB := make([]string, n)
	for j, s := range b {
		normB[j] = normalizeToken(s)
	}

	dp := make([][]float64, m+1)
	for i := range dp {
		dp[i] = make([]float64, n+1)
	}
	for i := 1; i <= m; i++ {
		dp[i][0] = float64(i) * sa.gapCost
	}
	for j := 1; j <= n; j++ {
		dp[0][j] = float64(j) * sa.gapCost
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			sub := dp[i-1][j-1] + sa.substitutionCost(normA[i-1], normB[j-1])
			del := dp[i-1][j] + sa.gapCost
			ins := dp[i][j-1] + sa.gapCost

			best := sub
			if del < best {
				best = del
			}
			if ins < best {
				best = ins
			}
			dp[i][j] = best
		}
	}

	// 回溯：优先对角线（匹配/替换），保证两个方向的映射互为逆
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && dp[i][j] == dp[i-1][j-1]+sa.substitutionCost(normA[i-1], normB[j-1]):
			mapAtoB[i-1] = j - 1
			mapBtoA[j-1] = i - 1
			i--
			j--
		case i > 0 && dp[i][j] == dp[i-1][j]+sa.gapCost:
			i--
		default:
			j--
		}
	}

	return AlignmentResult{MapAtoB: mapAtoB, MapBtoA: mapBtoA, Score: dp[m][n]}
}

// substitutionCost 替换代价
// 归一化后完全相同为 0；否则按归一化编辑距离相似度分档：
// 相似度 > high 为 1，> low 为 2，其余 3
func (sa *SequenceAligner) substitutionCost(a, b string) float64 {
	if a == b {
		return 0
	}
	sim := tokenSimilarity(a, b)
	switch {
	case sim > sa.similarityHigh:
		return 1
	case sim > sa.similarityLow:
		return 2
	default:
		return 3
	}
}

// tokenSimilarity 归一化编辑距离相似度：1 - dist/maxLen，范围 [0,1]
func tokenSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(editDistance(ra, rb))/float64(maxLen)
}

// editDistance Levenshtein 编辑距离（滚动单行）
func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			min := prev + cost
			if row[j]+1 < min {
				min = row[j] + 1
			}
			if row[j-1]+1 < min {
				min = row[j-1] + 1
			}
			row[j] = min
			prev = cur
		}
	}
	return row[len(b)]
}
