package speech

// CharAligner 字符对齐器
// 将原文分段的每个字符偏移映射到供应商文本表示（CharAlignment 的字符序列）
// 中的索引。两侧文本可能因归一化（重音、标点、大小写）或供应商插入的
// 停顿标记而不一致。该映射是全函数：找不到匹配时退化为插值，从不失败
type CharAligner struct {
	lookahead int
}

// NewCharAligner 创建字符对齐器实例
// lookahead 为失配后的重同步搜索窗口（字符数）
func NewCharAligner(lookahead int) *CharAligner {
	if lookahead <= 0 {
		lookahead = DefaultConfig().LookaheadWindow
	}
	return &CharAligner{lookahead: lookahead}
}

// CharMapping 字符对齐结果
// Mapped[i] 为原文第 i 个 rune 在供应商字符序列中的索引（保证已填充）；
// Matched[i] 标记该位置是直接匹配还是插值得到
type CharMapping struct {
	Mapped  []int
	Matched []bool
}

// Align 计算原文 rune 序列到供应商字符序列的映射
//
// 双指针增量扫描：逐位做归一化不敏感比较；失配时在两侧的有界前瞻窗口内
// 搜索重同步点，找到则记录 gap 后续扫，找不到则双指针各进一位（尽力而为）。
// 扫描后仍未映射的位置用最近已映射邻居线性插值填充；完全无锚点时按两侧
// 长度比例缩放
func (a *CharAligner) Align(original []rune, provider []string) CharMapping {
	n := len(original)
	mapped := make([]int, n)
	matched := make([]bool, n)
	for i := range mapped {
		mapped[i] = -1
	}

	m := len(provider)
	i, j := 0, 0
	for i < n && j < m {
		if charFoldEqual(original[i], provider[j]) {
			mapped[i] = j
			matched[i] = true
			i++
			j++
			continue
		}

		// 供应商侧窗口内找当前原文字符（供应商插入了字符，如停顿标记）
		if pj := a.findProvider(provider, j+1, original[i]); pj >= 0 {
			j = pj
			continue
		}
		// 原文侧窗口内找当前供应商字符（供应商丢弃了字符）
		if pi := a.findOriginal(original, i+1, provider[j]); pi >= 0 {
			i = pi
			continue
		}

		// 窗口内无法重同步：双指针各进一位，位置留待插值
		i++
		j++
	}

	a.interpolate(mapped, m)
	return CharMapping{Mapped: mapped, Matched: matched}
}

// findProvider 在供应商序列 [from, from+lookahead) 内查找与 r 匹配的索引
func (a *CharAligner) findProvider(provider []string, from int, r rune) int {
	end := from + a.lookahead
	for j := from; j < end && j < len(provider); j++ {
		if charFoldEqual(r, provider[j]) {
			return j
		}
	}
	return -1
}

// findOriginal 在原文 [from, from+lookahead) 内查找与供应商字符匹配的索引
func (a *CharAligner) findOriginal(original []rune, from int, char string) int {
	end := from + a.lookahead
	for i := from; i < end && i < len(original); i++ {
		if charFoldEqual(original[i], char) {
			return i
		}
	}
	return -1
}

// interpolate 填充未映射位置
// 两侧都有锚点时线性插值；只有单侧锚点时取邻近值；完全无锚点时按长度比例缩放
func (a *CharAligner) interpolate(mapped []int, providerLen int) {
	n := len(mapped)
	if n == 0 {
		return
	}

	prev := -1 // 最近一个已映射位置
	for i := 0; i < n; i++ {
		if mapped[i] >= 0 {
			prev = i
			continue
		}

		next := -1
		for k := i + 1; k < n; k++ {
			if mapped[k] >= 0 {
				next = k
				break
			}
		}

		switch {
		case prev >= 0 && next >= 0:
			ratio := float64(i-prev) / float64(next-prev)
			mapped[i] = mapped[prev] + int(ratio*float64(mapped[next]-mapped[prev]))
		case prev >= 0:
			mapped[i] = mapped[prev]
		case next >= 0:
			mapped[i] = mapped[next]
		default:
			if providerLen > 0 {
				mapped[i] = i * providerLen / n
			} else {
				mapped[i] = 0
			}
		}
		if providerLen > 0 && mapped[i] >= providerLen {
			mapped[i] = providerLen - 1
		}
		if mapped[i] < 0 {
			mapped[i] = 0
		}
	}
}

// charFoldEqual 原文字符与供应商字符的归一化不敏感相等
// 供应商字符可能是多字节字符串（甚至 "pau" 之类的停顿标记），
// 只有单字符串才参与比较
func charFoldEqual(r rune, char string) bool {
	cr := []rune(char)
	if len(cr) != 1 {
		return false
	}
	return runesFoldEqual(r, cr[0])
}

// WordTimingsFromChars 由字符映射推导分段内的词级时间戳
//
// 每个词取其首字符映射位置的开始时间与末字符映射位置的结束时间；
// 词的首末字符都来自直接匹配时计为 matched。返回时间为段内相对时间（秒）
func WordTimingsFromChars(tokens []Token, mapping CharMapping, chars CharAlignment) ([]WordTiming, int) {
	words := make([]WordTiming, 0, len(tokens))
	matchedCount := 0

	for _, tok := range tokens {
		if tok.Start >= len(mapping.Mapped) || tok.End <= tok.Start {
			continue
		}
		last := tok.End - 1
		if last >= len(mapping.Mapped) {
			last = len(mapping.Mapped) - 1
		}

		si := mapping.Mapped[tok.Start]
		ei := mapping.Mapped[last]
		if ei < si {
			ei = si
		}
		if si >= len(chars) {
			si = len(chars) - 1
		}
		if ei >= len(chars) {
			ei = len(chars) - 1
		}
		if si < 0 || ei < 0 {
			continue
		}

		isMatched := mapping.Matched[tok.Start] && mapping.Matched[last]
		if isMatched {
			matchedCount++
		}

		words = append(words, WordTiming{
			Word:            tok.Text,
			StartSec:        chars[si].StartMs / 1000,
			EndSec:          chars[ei].EndMs() / 1000,
			SourceCharStart: tok.Start,
			SourceCharEnd:   tok.End,
			IsSynthetic:     false,
		})
	}

	return words, matchedCount
}
