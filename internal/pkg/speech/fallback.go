package speech

// FallbackGenerator 兜底时间轴生成器
// 在没有可靠对齐数据时按固定语速生成均匀分布的词时间戳；
// 总是成功，从不返回错误
type FallbackGenerator struct {
	wordsPerSec float64
}

// NewFallbackGenerator 创建兜底生成器实例
// wordsPerSec 为目标语速（词/秒）
func NewFallbackGenerator(wordsPerSec float64) *FallbackGenerator {
	if wordsPerSec <= 0 {
		wordsPerSec = DefaultConfig().FallbackWordsPerSec
	}
	return &FallbackGenerator{wordsPerSec: wordsPerSec}
}

// Generate 生成均匀时间戳：第 i 个词为 [i/rate, (i+1)/rate)
func (g *FallbackGenerator) Generate(tokens []Token) []WordTiming {
	words := make([]WordTiming, 0, len(tokens))
	for i, tok := range tokens {
		words = append(words, WordTiming{
			Word:            tok.Text,
			StartSec:        float64(i) / g.wordsPerSec,
			EndSec:          float64(i+1) / g.wordsPerSec,
			SourceCharStart: tok.Start,
			SourceCharEnd:   tok.End,
			IsSynthetic:     true,
		})
	}
	return words
}

// Distribute 在已知时长内均匀分布词时间戳
// 供应商返回了音频时长但没有任何对齐数据时使用
func (g *FallbackGenerator) Distribute(tokens []Token, totalSec float64) []WordTiming {
	n := len(tokens)
	if n == 0 {
		return nil
	}
	if totalSec <= 0 {
		return g.Generate(tokens)
	}

	per := totalSec / float64(n)
	words := make([]WordTiming, 0, n)
	for i, tok := range tokens {
		words = append(words, WordTiming{
			Word:            tok.Text,
			StartSec:        float64(i) * per,
			EndSec:          float64(i+1) * per,
			SourceCharStart: tok.Start,
			SourceCharEnd:   tok.End,
			IsSynthetic:     true,
		})
	}
	return words
}
