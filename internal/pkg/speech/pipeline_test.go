package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeSynthesizer struct {
	fn func(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	return f.fn(ctx, req)
}

type fakeTranscriber struct {
	fn func(ctx context.Context, audio []byte, languageHint string) (*TranscriptionResult, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, languageHint string) (*TranscriptionResult, error) {
	return f.fn(ctx, audio, languageHint)
}

// perfectSynthesizer 返回与请求文本逐字符一致的时间戳，每字符 100ms
func perfectSynthesizer() *fakeSynthesizer {
	return &fakeSynthesizer{fn: func(_ context.Context, req SynthesisRequest) (*SynthesisResult, error) {
		chars := charsOf(req.Text, 100)
		return &SynthesisResult{
			AudioBytes:    []byte(req.Text),
			DurationSec:   float64(len([]rune(req.Text))) * 0.1,
			CharAlignment: chars,
		}, nil
	}}
}

func fastRetryConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	return cfg
}

func TestEngine_Narrate(t *testing.T) {
	Convey("Engine.Narrate 端到端管线", t, func() {
		ctx := context.Background()

		Convey("供应商返回完整字符时间戳时得到 perfect 时间轴", func() {
			engine, err := NewEngine(DefaultConfig(), perfectSynthesizer())
			So(err, ShouldBeNil)

			narration, err := engine.Narrate(ctx, "Hola mundo.", VoiceConfig{})

			So(err, ShouldBeNil)
			So(narration.Timeline.Accuracy, ShouldEqual, AccuracyPerfect)
			So(len(narration.Timeline.Words), ShouldEqual, 2)

			So(narration.Timeline.Words[0].Word, ShouldEqual, "Hola")
			So(narration.Timeline.Words[0].StartSec, ShouldAlmostEqual, 0.0, 1e-9)
			So(narration.Timeline.Words[0].EndSec, ShouldAlmostEqual, 0.4, 1e-9)
			So(narration.Timeline.Words[1].Word, ShouldEqual, "mundo.")
			So(narration.Timeline.Words[1].StartSec, ShouldAlmostEqual, 0.5, 1e-9)
			So(narration.Timeline.Words[1].EndSec, ShouldAlmostEqual, 1.1, 1e-9)
			So(narration.Timeline.TotalDurationSec, ShouldAlmostEqual, 1.1, 1e-9)

			So(narration.States[len(narration.States)-1], ShouldEqual, StateDone)
			So(narration.States, ShouldNotContain, StateDegraded)
		})

		Convey("多段文本的词偏移指向原文且音频按序拼接", func() {
			cfg := DefaultConfig()
			cfg.MaxChunkSize = 12
			engine, err := NewEngine(cfg, perfectSynthesizer())
			So(err, ShouldBeNil)

			text := "First one. Second two."
			narration, err := engine.Narrate(ctx, text, VoiceConfig{})

			So(err, ShouldBeNil)
			So(string(narration.Audio), ShouldEqual, text)
			So(narration.Timeline.Accuracy, ShouldEqual, AccuracyPerfect)

			rs := []rune(text)
			for i, w := range narration.Timeline.Words {
				So(string(rs[w.SourceCharStart:w.SourceCharEnd]), ShouldEqual, w.Word)
				if i > 0 {
					So(w.StartSec, ShouldBeGreaterThanOrEqualTo, narration.Timeline.Words[i-1].EndSec)
				}
			}
		})

		Convey("空输入被拒绝", func() {
			engine, err := NewEngine(DefaultConfig(), perfectSynthesizer())
			So(err, ShouldBeNil)

			_, err = engine.Narrate(ctx, "   \n  ", VoiceConfig{})
			So(err, ShouldEqual, ErrInvalidInput)
		})

		Convey("瞬时失败在重试内吸收", func() {
			var calls atomic.Int32
			flaky := &fakeSynthesizer{fn: func(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
				if calls.Add(1) == 1 {
					return nil, fmt.Errorf("upstream 503")
				}
				return perfectSynthesizer().fn(ctx, req)
			}}

			engine, err := NewEngine(fastRetryConfig(), flaky)
			So(err, ShouldBeNil)

			narration, err := engine.Narrate(ctx, "Hola mundo.", VoiceConfig{})

			So(err, ShouldBeNil)
			So(calls.Load(), ShouldEqual, 2)
			So(narration.Timeline.Accuracy, ShouldEqual, AccuracyPerfect)
		})

		Convey("重试耗尽后走兜底支路产出合成时间轴", func() {
			broken := &fakeSynthesizer{fn: func(context.Context, SynthesisRequest) (*SynthesisResult, error) {
				return nil, fmt.Errorf("provider down")
			}}

			cfg := fastRetryConfig()
			cfg.MaxAttempts = 1
			engine, err := NewEngine(cfg, broken)
			So(err, ShouldBeNil)

			narration, err := engine.Narrate(ctx, "uno dos tres", VoiceConfig{})

			So(err, ShouldBeNil)
			So(narration.Timeline.Accuracy, ShouldEqual, AccuracyFallback)
			So(len(narration.Timeline.Words), ShouldEqual, 3)
			for _, w := range narration.Timeline.Words {
				So(w.IsSynthetic, ShouldBeTrue)
			}
			So(narration.States, ShouldContain, StateDegraded)
			So(narration.States, ShouldContain, StateFallback)
			So(narration.States[len(narration.States)-1], ShouldEqual, StateDone)
		})

		Convey("配置为分段失败即中止时返回 ErrChunkSynthesis", func() {
			broken := &fakeSynthesizer{fn: func(context.Context, SynthesisRequest) (*SynthesisResult, error) {
				return nil, fmt.Errorf("provider down")
			}}

			cfg := fastRetryConfig()
			cfg.MaxAttempts = 1
			cfg.AbortOnChunkFailure = true
			engine, err := NewEngine(cfg, broken)
			So(err, ShouldBeNil)

			_, err = engine.Narrate(ctx, "uno dos tres", VoiceConfig{})
			So(errors.Is(err, ErrChunkSynthesis), ShouldBeTrue)
		})

		Convey("上下文取消时短路失败", func() {
			engine, err := NewEngine(DefaultConfig(), perfectSynthesizer())
			So(err, ShouldBeNil)

			cancelled, cancel := context.WithCancel(context.Background())
			cancel()

			_, err = engine.Narrate(cancelled, "Hola mundo.", VoiceConfig{})
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestEngine_TranscriptionRefinement(t *testing.T) {
	Convey("转写修正在供应商缺字符时间戳时生效", t, func() {
		ctx := context.Background()
		text := "uno dos tres cuatro cinco seis siete ocho nueve diez"

		// 供应商只给音频和时长，不给字符时间戳
		plain := &fakeSynthesizer{fn: func(_ context.Context, req SynthesisRequest) (*SynthesisResult, error) {
			return &SynthesisResult{AudioBytes: []byte(req.Text), DurationSec: 5.0}, nil
		}}

		// 转写漏掉 "cinco"，其余词时间已知
		transcriber := &fakeTranscriber{fn: func(context.Context, []byte, string) (*TranscriptionResult, error) {
			var words []TranscribedWord
			for i, w := range strings.Fields(text) {
				if w == "cinco" {
					continue
				}
				words = append(words, TranscribedWord{
					Word:     w,
					StartSec: float64(i) * 0.5,
					EndSec:   float64(i)*0.5 + 0.45,
				})
			}
			return &TranscriptionResult{Text: text, Words: words, DurationSec: 5.0}, nil
		}}

		engine, err := NewEngine(DefaultConfig(), plain, WithTranscriber(transcriber))
		So(err, ShouldBeNil)

		narration, err := engine.Narrate(ctx, text, VoiceConfig{})
		So(err, ShouldBeNil)

		words := narration.Timeline.Words
		So(len(words), ShouldEqual, 10)

		Convey("匹配词采用转写时间", func() {
			So(words[0].StartSec, ShouldAlmostEqual, 0.0, 1e-9)
			So(words[0].EndSec, ShouldAlmostEqual, 0.45, 1e-9)
			So(words[0].IsSynthetic, ShouldBeFalse)
			So(words[9].StartSec, ShouldAlmostEqual, 4.5, 1e-9)
		})

		Convey("漏词在相邻匹配词之间插值", func() {
			So(words[4].Word, ShouldEqual, "cinco")
			So(words[4].StartSec, ShouldBeGreaterThanOrEqualTo, words[3].EndSec)
			So(words[4].EndSec, ShouldBeLessThanOrEqualTo, words[5].StartSec)
		})

		Convey("9/10 匹配判定为 good", func() {
			So(narration.Timeline.Accuracy, ShouldEqual, AccuracyGood)
		})

		Convey("总时长取转写实测值", func() {
			So(narration.Timeline.TotalDurationSec, ShouldAlmostEqual, 5.0, 1e-9)
		})
	})

	Convey("转写失败时保留供应商时间轴", t, func() {
		text := "uno dos tres"
		plain := &fakeSynthesizer{fn: func(_ context.Context, req SynthesisRequest) (*SynthesisResult, error) {
			return &SynthesisResult{AudioBytes: []byte(req.Text), DurationSec: 1.2}, nil
		}}
		failing := &fakeTranscriber{fn: func(context.Context, []byte, string) (*TranscriptionResult, error) {
			return nil, fmt.Errorf("asr unavailable")
		}}

		engine, err := NewEngine(DefaultConfig(), plain, WithTranscriber(failing))
		So(err, ShouldBeNil)

		narration, err := engine.Narrate(context.Background(), text, VoiceConfig{})

		So(err, ShouldBeNil)
		So(len(narration.Timeline.Words), ShouldEqual, 3)
		So(narration.Timeline.TotalDurationSec, ShouldAlmostEqual, 1.2, 1e-9)
		So(narration.Timeline.Accuracy, ShouldEqual, AccuracyFallback)
	})
}

func TestClassifyAccuracy(t *testing.T) {
	Convey("classifyAccuracy 按匹配占比分级", t, func() {
		So(classifyAccuracy(10, 10), ShouldEqual, AccuracyPerfect)
		So(classifyAccuracy(95, 100), ShouldEqual, AccuracyPerfect)
		So(classifyAccuracy(9, 10), ShouldEqual, AccuracyGood)
		So(classifyAccuracy(7, 10), ShouldEqual, AccuracyGood)
		So(classifyAccuracy(6, 10), ShouldEqual, AccuracyFallback)
		So(classifyAccuracy(0, 0), ShouldEqual, AccuracyFallback)
	})
}
