package speech

import (
	"strings"
	"unicode"

	"github.com/go-ego/gse"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Token 原文中的一个词
// 偏移为原文的 rune 偏移，End 为开区间
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenizer 词切分器
// 先按空白切分；无空白的 CJK 连写段再用 gse 分词细分，
// 保证逐词高亮在中文文本上也落在词边界而不是整句
type Tokenizer struct {
	segmenter *gse.Segmenter
}

// NewTokenizer 创建词切分器实例
func NewTokenizer() *Tokenizer {
	segmenter, err := gse.New()
	if err != nil {
		// 分词器初始化失败则降级为整段保留（空白切分仍然可用）
		return &Tokenizer{}
	}
	return &Tokenizer{segmenter: &segmenter}
}

// Words 将文本切分为带偏移的词序列
func (t *Tokenizer) Words(text string) []Token {
	var tokens []Token
	rs := []rune(text)

	start := -1
	for i := 0; i <= len(rs); i++ {
		atEnd := i == len(rs)
		isSpace := !atEnd && unicode.IsSpace(rs[i])

		switch {
		case !atEnd && !isSpace && start < 0:
			start = i
		case (atEnd || isSpace) && start >= 0:
			tokens = append(tokens, t.splitRun(rs, start, i)...)
			start = -1
		}
	}

	return tokens
}

// splitRun 细分一个无空白的字符连写段
func (t *Tokenizer) splitRun(rs []rune, start, end int) []Token {
	run := string(rs[start:end])
	if t.segmenter == nil || !containsCJK(run) {
		return []Token{{Text: run, Start: start, End: end}}
	}

	// gse 的切分结果按序拼接等于输入，逐段累计即可还原偏移
	var tokens []Token
	offset := start
	for _, piece := range t.segmenter.Cut(run, false) {
		n := len([]rune(piece))
		if n == 0 {
			continue
		}
		tokens = append(tokens, Token{Text: piece, Start: offset, End: offset + n})
		offset += n
	}
	if len(tokens) == 0 {
		return []Token{{Text: run, Start: start, End: end}}
	}
	return tokens
}

// containsCJK 检查字符串是否包含 CJK 字符
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// stripDiacritics 去除变音符号（NFD 分解后移除 Mn 类字符）
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// foldRune 归一化单个字符：小写化并去除变音符号
func foldRune(r rune) rune {
	folded := stripDiacritics(string(unicode.ToLower(r)))
	for _, fr := range folded {
		return fr
	}
	return r
}

// runesFoldEqual 归一化不敏感的字符相等（大小写、变音符号不敏感）
func runesFoldEqual(a, b rune) bool {
	return foldRune(a) == foldRune(b)
}

// normalizeToken 归一化词：小写、去变音符号、去标点
// 用于序列对齐时的不敏感比较（"Mundo." 与 "mundo" 视为相同）
func normalizeToken(s string) string {
	s = stripDiacritics(strings.ToLower(s))
	var b strings.Builder
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
