package speech

import (
	"strings"
	"unicode"
)

// Chunker 文本分块器
// 将原文切分为供应商尺寸限制内的分段：优先按句子边界切分，
// 单句超限时退化为按词边界累积切分。分段偏移连续无重叠，
// 全部分段按序拼接可精确还原原文
type Chunker struct {
	maxSize   int
	tokenizer *Tokenizer
}

// NewChunker 创建文本分块器实例
//
// Args:
//   - maxSize: 单段最大字符数（rune），由供应商输入限制决定
//   - tokenizer: 词切分器，用于超长句子的词边界切分
func NewChunker(maxSize int, tokenizer *Tokenizer) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultConfig().MaxChunkSize
	}
	if tokenizer == nil {
		tokenizer = NewTokenizer()
	}
	return &Chunker{maxSize: maxSize, tokenizer: tokenizer}
}

// sentenceEndings 句子结束符（中西文）
var sentenceEndings = map[rune]bool{
	'.': true, '!': true, '?': true, ';': true,
	'。': true, '！': true, '？': true, '；': true, '…': true,
}

// Split 将原文切分为有序分段
// 全空白或空输入返回空列表（调用方应在分块前拒绝这类输入）
func (c *Chunker) Split(text string) []TextSegment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	rs := []rune(text)
	var segments []TextSegment
	segStart := 0

	appendSegment := func(end int) {
		if end <= segStart {
			return
		}
		segments = append(segments, TextSegment{
			Text:        string(rs[segStart:end]),
			StartOffset: segStart,
			EndOffset:   end,
			Ordinal:     len(segments),
		})
		segStart = end
	}

	prev := 0
	for _, b := range c.sentenceBoundaries(rs) {
		if b-segStart > c.maxSize {
			// 先把已积累的完整句子落段
			appendSegment(prev)
			if b-segStart > c.maxSize {
				// 单句仍然超限，按词边界切分
				for _, cut := range c.wordCuts(rs, segStart, b) {
					appendSegment(cut)
				}
			}
		}
		prev = b
	}
	appendSegment(len(rs))

	return segments
}

// sentenceBoundaries 扫描句子结束偏移（升序，末尾必含文本长度）
// 句子在「结束符 + 空白或文本末尾」处结束；结束符后的引号、括号归入当前句
func (c *Chunker) sentenceBoundaries(rs []rune) []int {
	var boundaries []int
	for i := 0; i < len(rs); i++ {
		if !sentenceEndings[rs[i]] {
			continue
		}
		j := i + 1
		for j < len(rs) && (sentenceEndings[rs[j]] || isClosingMark(rs[j])) {
			j++
		}
		if j >= len(rs) || unicode.IsSpace(rs[j]) {
			boundaries = append(boundaries, j)
			i = j - 1
		}
	}
	if len(boundaries) == 0 || boundaries[len(boundaries)-1] != len(rs) {
		boundaries = append(boundaries, len(rs))
	}
	return boundaries
}

// wordCuts 对超长区间 [start,end) 计算词边界切点（含 end，升序）
// 逐词累积，超出 maxSize 时在词首切开；单词本身超限时在词内按 rune 硬切，
// 保证任何分段都不超过供应商输入上限
func (c *Chunker) wordCuts(rs []rune, start, end int) []int {
	tokens := c.tokenizer.Words(string(rs[start:end]))
	var cuts []int
	cutStart := start
	for _, tok := range tokens {
		wordStart := start + tok.Start
		wordEnd := start + tok.End
		if wordEnd-cutStart > c.maxSize && wordStart > cutStart {
			cuts = append(cuts, wordStart)
			cutStart = wordStart
		}
		for wordEnd-cutStart > c.maxSize {
			cuts = append(cuts, cutStart+c.maxSize)
			cutStart += c.maxSize
		}
	}
	cuts = append(cuts, end)
	return cuts
}

// isClosingMark 检查是否为右引号/右括号类字符
func isClosingMark(r rune) bool {
	switch r {
	case '"', '\'', '」', '』', '”', '’', ')', '）', '】', '》', '〉', ']':
		return true
	}
	return false
}
