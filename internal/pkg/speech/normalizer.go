package speech

import (
	"math"
)

// Normalizer 时间轴归一化器
// 把原始时间轴整体缩放到实测音频时长，消除供应商时间精度误差
// 累积出的漂移；缩放后强制单调并兜底最小词时长
type Normalizer struct {
	minWordDurationSec float64
	epsilonSec         float64
}

// NewNormalizer 创建时间轴归一化器实例
func NewNormalizer(minWordDurationSec, epsilonSec float64) *Normalizer {
	if minWordDurationSec <= 0 {
		minWordDurationSec = DefaultConfig().MinWordDurationSec
	}
	if epsilonSec <= 0 {
		epsilonSec = DefaultConfig().DurationEpsilonSec
	}
	return &Normalizer{minWordDurationSec: minWordDurationSec, epsilonSec: epsilonSec}
}

// Normalize 将词时间轴缩放到实测时长 actualSec
//
// scale = actualSec / rawTotalSec，逐词乘以 scale 后做两步钳制：
// 词开始不早于前一词结束；词结束不早于开始 + 最小词时长。
// 实测时长为零或非有限值时返回 ErrNormalizationDegenerate
//
// Returns:
//   - words: 归一化后的词时间轴（原地修改入参切片）
//   - totalSec: 归一化后的总时长
func (n *Normalizer) Normalize(words []WordTiming, rawTotalSec, actualSec float64) ([]WordTiming, float64, error) {
	if actualSec <= 0 || math.IsNaN(actualSec) || math.IsInf(actualSec, 0) {
		return nil, 0, ErrNormalizationDegenerate
	}
	if len(words) == 0 {
		return words, actualSec, nil
	}

	scale := 1.0
	if rawTotalSec > 0 {
		scale = actualSec / rawTotalSec
	}

	prevEnd := 0.0
	for i := range words {
		words[i].StartSec *= scale
		words[i].EndSec *= scale

		if words[i].StartSec < prevEnd {
			words[i].StartSec = prevEnd
		}
		if words[i].EndSec < words[i].StartSec+n.minWordDurationSec {
			words[i].EndSec = words[i].StartSec + n.minWordDurationSec
		}
		prevEnd = words[i].EndSec
	}

	// 音频持续到实测末尾，末词结束时间不足时补齐
	last := len(words) - 1
	if actualSec-words[last].EndSec > n.epsilonSec {
		words[last].EndSec = actualSec
	}

	totalSec := actualSec
	if words[last].EndSec > totalSec {
		totalSec = words[last].EndSec
	}
	return words, totalSec, nil
}
