package speech

// Accuracy 时间轴精度分级
// 按直接匹配词占比分级：>90% perfect，>=70% good，其余 fallback
type Accuracy string

const (
	AccuracyPerfect  Accuracy = "perfect"
	AccuracyGood     Accuracy = "good"
	AccuracyFallback Accuracy = "fallback"
)

// WordTiming 原文中单个词的时间戳
// 词序严格遵循原文阅读顺序，词不会被重排或丢弃
type WordTiming struct {
	Word            string  `json:"word"`              // 原文中的词
	StartSec        float64 `json:"start_sec"`         // 开始时间（秒）
	EndSec          float64 `json:"end_sec"`           // 结束时间（秒）
	SourceCharStart int     `json:"source_char_start"` // 原文中的起始偏移（rune）
	SourceCharEnd   int     `json:"source_char_end"`   // 原文中的结束偏移（rune，开区间）
	IsSynthetic     bool    `json:"is_synthetic"`      // 是否为合成（均匀分布）时间戳
}

// Timeline 覆盖整段旁白的逐词时间轴
// 归一化完成后不可变，交由调用方持久化
type Timeline struct {
	Words            []WordTiming `json:"words"`
	TotalDurationSec float64      `json:"total_duration_sec"`
	Accuracy         Accuracy     `json:"accuracy"`
}

// CharTiming 供应商自身文本表示中的单字符时间戳
// 注意：字符序列是供应商的文本表示，可能与原文不一致（归一化、停顿标记等）
type CharTiming struct {
	Char       string  `json:"char"`
	StartMs    float64 `json:"start_ms"`
	DurationMs float64 `json:"duration_ms"`
}

// CharAlignment 供应商返回的字符级时间戳序列
// nil 表示供应商未返回字符时间戳（属于预期情况，不是错误）
type CharAlignment []CharTiming

// EndMs 字符的结束时间（毫秒）
func (c CharTiming) EndMs() float64 {
	return c.StartMs + c.DurationMs
}

// TextSegment 原文的一个切片（供应商尺寸限制内的分块）
// 偏移始终指向原文（rune 偏移），而不是供应商的文本表示
type TextSegment struct {
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Ordinal     int    `json:"ordinal"`
}

// RawChunkResult 单段合成输出
type RawChunkResult struct {
	Segment       TextSegment
	AudioBytes    []byte
	DurationSec   float64       // 供应商报告的音频时长（秒），0 表示未知
	CharAlignment CharAlignment // 可选
}
