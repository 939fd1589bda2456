package speech

// ChunkTiming 单段的对齐产物：音频、段内相对词时间与匹配统计
type ChunkTiming struct {
	Result  RawChunkResult
	Words   []WordTiming // 段内相对时间（秒）
	Matched int          // 直接匹配（非插值/非合成）的词数
}

// MergedTimeline 分段拼接结果（归一化前的原始时间轴）
type MergedTimeline struct {
	Audio        []byte
	Words        []WordTiming
	RawTotalSec  float64 // 按供应商报告时长与段间停顿累计的总时长
	MatchedWords int
}

// Merger 分段拼接器
// 按提交顺序拼接音频字节并把各段词时间平移到章节级累计时间轴上；
// 段与段之间累计一个固定停顿（不作为词出现）。时间轴单调性由构造保证
type Merger struct {
	pauseSec float64
}

// NewMerger 创建分段拼接器实例
// pauseSec 为段间停顿时长（秒），对应分段播报之间可感知的停顿
func NewMerger(pauseSec float64) *Merger {
	if pauseSec < 0 {
		pauseSec = 0
	}
	return &Merger{pauseSec: pauseSec}
}

// Merge 拼接有序分段
// 各段词时间加上运行中的累计偏移后依次追加；偏移按段时长推进，
// 每两段之间额外加一个停顿
func (m *Merger) Merge(chunks []ChunkTiming) MergedTimeline {
	var out MergedTimeline
	cumulative := 0.0

	for idx, chunk := range chunks {
		if idx > 0 {
			cumulative += m.pauseSec
		}

		for _, w := range chunk.Words {
			w.StartSec += cumulative
			w.EndSec += cumulative
			// 词偏移从段内换算回原文
			w.SourceCharStart += chunk.Result.Segment.StartOffset
			w.SourceCharEnd += chunk.Result.Segment.StartOffset
			out.Words = append(out.Words, w)
		}

		out.Audio = append(out.Audio, chunk.Result.AudioBytes...)
		out.MatchedWords += chunk.Matched
		cumulative += chunkDuration(chunk)
	}

	out.RawTotalSec = cumulative
	return out
}

// chunkDuration 段时长：优先供应商报告值，否则取段内最后一个词的结束时间
func chunkDuration(chunk ChunkTiming) float64 {
	if chunk.Result.DurationSec > 0 {
		return chunk.Result.DurationSec
	}
	if n := len(chunk.Words); n > 0 {
		return chunk.Words[n-1].EndSec
	}
	return 0
}
