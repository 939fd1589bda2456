package speech

import (
	"errors"
	"time"
)

// Config 引擎参数
// 阈值类参数都是经验值，应结合真实供应商输出重新调校，不要当作固定语义
type Config struct {
	MaxChunkSize        int     `mapstructure:"max_chunk_size"`         // 单段最大字符数（rune）
	InterChunkPauseSec  float64 `mapstructure:"inter_chunk_pause_sec"`  // 段间停顿（秒）
	MinWordDurationSec  float64 `mapstructure:"min_word_duration_sec"`  // 单词最小时长下限（秒）
	DurationEpsilonSec  float64 `mapstructure:"duration_epsilon_sec"`   // 时长校验容差（秒）
	FallbackWordsPerSec float64 `mapstructure:"fallback_words_per_sec"` // 兜底语速（词/秒）

	LookaheadWindow int     `mapstructure:"lookahead_window"` // 字符对齐重同步窗口
	GapCost         float64 `mapstructure:"gap_cost"`         // 序列对齐 gap 代价
	SimilarityHigh  float64 `mapstructure:"similarity_high"`  // 相似度高阈值（替换代价 1）
	SimilarityLow   float64 `mapstructure:"similarity_low"`   // 相似度低阈值（替换代价 2）

	MaxAttempts          int           `mapstructure:"max_attempts"`          // 供应商调用最大尝试次数
	InitialBackoff       time.Duration `mapstructure:"initial_backoff"`       // 首次重试间隔
	CallTimeout          time.Duration `mapstructure:"call_timeout"`          // 单次供应商调用超时
	SynthesisConcurrency int           `mapstructure:"synthesis_concurrency"` // 合成并发上限

	AbortOnChunkFailure     bool `mapstructure:"abort_on_chunk_failure"`    // 分段合成失败时中止整个任务
	RefineWithTranscription bool `mapstructure:"refine_with_transcription"` // 用转写结果修正时间轴
}

// DefaultConfig 返回默认引擎参数
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:        1000,
		InterChunkPauseSec:  0.3,
		MinWordDurationSec:  0.05,
		DurationEpsilonSec:  0.01,
		FallbackWordsPerSec: 2.5,

		LookaheadWindow: 5,
		GapCost:         2,
		SimilarityHigh:  0.7,
		SimilarityLow:   0.4,

		MaxAttempts:          3,
		InitialBackoff:       500 * time.Millisecond,
		CallTimeout:          30 * time.Second,
		SynthesisConcurrency: 4,
	}
}

// Validate 验证引擎参数有效性
func (c Config) Validate() error {
	if c.MaxChunkSize <= 0 {
		return errors.New("max_chunk_size must be positive")
	}
	if c.FallbackWordsPerSec <= 0 {
		return errors.New("fallback_words_per_sec must be positive")
	}
	if c.MinWordDurationSec < 0 || c.InterChunkPauseSec < 0 {
		return errors.New("durations must not be negative")
	}
	if c.SimilarityLow > c.SimilarityHigh {
		return errors.New("similarity_low must not exceed similarity_high")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	if c.SynthesisConcurrency <= 0 {
		return errors.New("synthesis_concurrency must be positive")
	}
	return nil
}

// 引擎错误分类
// 供应商级瞬时错误在客户端内部重试，不会穿透到这里；
// 只有重试耗尽与结构性非法输入会以下列错误出现
var (
	ErrInvalidInput            = errors.New("speech: input text is empty")
	ErrChunkSynthesis          = errors.New("speech: chunk synthesis failed after retries")
	ErrTranscription           = errors.New("speech: transcription failed")
	ErrNormalizationDegenerate = errors.New("speech: measured audio duration is degenerate")
)
