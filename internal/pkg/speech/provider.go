package speech

import (
	"context"
)

// VoiceConfig 旁白音色配置
type VoiceConfig struct {
	Provider     string  `json:"provider"`      // 供应商名称（如 volcengine）
	VoiceID      string  `json:"voice_id"`      // 供应商音色标识
	SpeedRatio   float64 `json:"speed_ratio"`   // 语速比例，默认 1.0
	SampleRate   int     `json:"sample_rate"`   // 采样率
	LanguageHint string  `json:"language_hint"` // 语言提示（转写用）
}

// SynthesisRequest 单段合成请求
type SynthesisRequest struct {
	Text  string
	Voice VoiceConfig
}

// SynthesisResult 单段合成结果
// CharAlignment 为 nil 时表示供应商不提供字符时间戳，属于预期情况
type SynthesisResult struct {
	AudioBytes    []byte
	DurationSec   float64
	CharAlignment CharAlignment
}

// SynthesisProvider 旁白合成供应商接口（由上层注入，便于单测和替换实现）
type SynthesisProvider interface {
	// Synthesize 合成一段文本，返回音频及可选的字符级时间戳
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// TranscribedWord 转写得到的单词时间戳
type TranscribedWord struct {
	Word     string  `json:"word"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// TranscriptionResult 独立语音识别的转写结果
type TranscriptionResult struct {
	Text        string
	Words       []TranscribedWord
	DurationSec float64 // 实测音频时长（秒）
}

// TranscriptionProvider 转写供应商接口，用于对合成音频做二次时间测量
type TranscriptionProvider interface {
	// Transcribe 识别音频，返回文本、词级时间戳与实测时长
	Transcribe(ctx context.Context, audio []byte, languageHint string) (*TranscriptionResult, error)
}
