package speech

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// State 管线状态
// 重试与多级兜底建模为显式状态机而不是嵌套条件分支，
// 保证失败语义可审计、可单独测试
type State string

const (
	StateChunking     State = "chunking"
	StateSynthesizing State = "synthesizing"
	StateAligning     State = "aligning"
	StateDegraded     State = "degraded"
	StateFallback     State = "fallback"
	StateMerging      State = "merging"
	StateNormalizing  State = "normalizing"
	StateDone         State = "done"
	StateRejected     State = "rejected"
	StateFailed       State = "failed"
)

// Narration 一次旁白请求的最终产物：音频制品 + 逐词时间轴
type Narration struct {
	Audio    []byte
	Timeline *Timeline
	States   []State // 状态轨迹（按经过顺序）
}

// Engine 语音时间同步引擎
// 每次请求顺序走完一条管线；请求之间不共享可变状态，引擎本身无持久状态
type Engine struct {
	cfg         Config
	synthesizer SynthesisProvider
	transcriber TranscriptionProvider

	tokenizer  *Tokenizer
	chunker    *Chunker
	charAlign  *CharAligner
	seqAlign   *SequenceAligner
	merger     *Merger
	normalizer *Normalizer
	fallback   *FallbackGenerator
}

// Option 引擎可选配置
type Option func(*Engine)

// WithTranscriber 注入转写供应商，启用转写修正与兜底测量
func WithTranscriber(t TranscriptionProvider) Option {
	return func(e *Engine) { e.transcriber = t }
}

// WithTokenizer 注入自定义词切分器（主要用于单测）
func WithTokenizer(t *Tokenizer) Option {
	return func(e *Engine) { e.tokenizer = t }
}

// NewEngine 创建引擎实例
func NewEngine(cfg Config, synthesizer SynthesisProvider, opts ...Option) (*Engine, error) {
	if synthesizer == nil {
		return nil, fmt.Errorf("synthesis provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{cfg: cfg, synthesizer: synthesizer}
	for _, opt := range opts {
		opt(e)
	}
	if e.tokenizer == nil {
		e.tokenizer = NewTokenizer()
	}
	e.chunker = NewChunker(cfg.MaxChunkSize, e.tokenizer)
	e.charAlign = NewCharAligner(cfg.LookaheadWindow)
	e.seqAlign = NewSequenceAligner(cfg)
	e.merger = NewMerger(cfg.InterChunkPauseSec)
	e.normalizer = NewNormalizer(cfg.MinWordDurationSec, cfg.DurationEpsilonSec)
	e.fallback = NewFallbackGenerator(cfg.FallbackWordsPerSec)
	return e, nil
}

// job 单次请求的全部中间状态（请求私有，不跨请求共享）
type job struct {
	text  string
	voice VoiceConfig

	segments []TextSegment
	results  []*RawChunkResult // 按 Ordinal 排列，nil 表示该段合成失败
	chunks   []ChunkTiming
	merged   MergedTimeline

	rawSec       float64 // 归一化前词时间所处时间尺度的总时长
	measuredSec  float64
	matchedWords int
	degraded     bool

	states []State
	err    error
}

// enter 记录状态迁移
func (j *job) enter(s State) State {
	j.states = append(j.states, s)
	log.Debug().Str("state", string(s)).Msg("narration pipeline state")
	return s
}

// Narrate 执行一次旁白合成与时间同步
//
// 状态机：Chunking → Synthesizing → Aligning → Merging → Normalizing → Done，
// 空输入走 Rejected；分段失败或对齐数据缺失走 Degraded → Fallback 支路。
// 除非输入非法或配置了分段失败即中止，总会产出某个 Timeline
// （最差为 fallback 精度），并把精度分级告知调用方
func (e *Engine) Narrate(ctx context.Context, text string, voice VoiceConfig) (*Narration, error) {
	j := &job{text: text, voice: voice}
	state := StateChunking

	for {
		if err := ctx.Err(); err != nil {
			// 取消：丢弃全部部分结果，短路到终态
			j.enter(StateFailed)
			return nil, err
		}

		switch state {
		case StateChunking:
			j.enter(state)
			state = e.stepChunk(j)
		case StateSynthesizing:
			j.enter(state)
			state = e.stepSynthesize(ctx, j)
		case StateAligning:
			j.enter(state)
			state = e.stepAlign(j)
		case StateDegraded:
			j.enter(state)
			state = StateFallback
		case StateFallback:
			j.enter(state)
			state = e.stepFallback(j)
		case StateMerging:
			j.enter(state)
			state = e.stepMerge(ctx, j)
		case StateNormalizing:
			j.enter(state)
			state = e.stepNormalize(j)
		case StateDone:
			j.enter(state)
			return e.finish(j), nil
		case StateRejected:
			j.enter(state)
			return nil, ErrInvalidInput
		case StateFailed:
			j.enter(state)
			return nil, j.err
		default:
			return nil, fmt.Errorf("unknown pipeline state: %s", state)
		}
	}
}

// stepChunk 分块
func (e *Engine) stepChunk(j *job) State {
	j.segments = e.chunker.Split(j.text)
	if len(j.segments) == 0 {
		return StateRejected
	}
	log.Debug().Int("segments", len(j.segments)).Msg("text chunked")
	return StateSynthesizing
}

// stepSynthesize 并发合成所有分段
// 网络调用乱序并发（有界工作池），结果按原始顺序回填后再进入拼接，
// 需要保证顺序的是输出时间轴而不是网络调用本身
func (e *Engine) stepSynthesize(ctx context.Context, j *job) State {
	j.results = make([]*RawChunkResult, len(j.segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.SynthesisConcurrency)

	for _, seg := range j.segments {
		g.Go(func() error {
			res, err := e.synthesizeWithRetry(gctx, seg, j.voice)
			if err != nil {
				log.Warn().Err(err).Int("ordinal", seg.Ordinal).Msg("chunk synthesis exhausted retries")
				if e.cfg.AbortOnChunkFailure {
					return fmt.Errorf("%w: chunk %d: %v", ErrChunkSynthesis, seg.Ordinal, err)
				}
				// 配置为继续：该段保持 nil，由兜底支路补时间
				return nil
			}
			j.results[seg.Ordinal] = &RawChunkResult{
				Segment:       seg,
				AudioBytes:    res.AudioBytes,
				DurationSec:   res.DurationSec,
				CharAlignment: res.CharAlignment,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		j.err = err
		return StateFailed
	}
	for _, r := range j.results {
		if r == nil {
			j.degraded = true
		}
	}
	if j.degraded {
		return StateDegraded
	}
	return StateAligning
}

// synthesizeWithRetry 单段合成，指数退避重试
// 瞬时失败（超时、限流、5xx）在这里吸收；只有重试耗尽才向上冒泡
func (e *Engine) synthesizeWithRetry(ctx context.Context, seg TextSegment, voice VoiceConfig) (*SynthesisResult, error) {
	var result *SynthesisResult

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.InitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.cfg.MaxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()

		res, err := e.synthesizer.Synthesize(callCtx, SynthesisRequest{Text: seg.Text, Voice: voice})
		if err != nil {
			return err
		}
		result = res
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// stepAlign 逐段对齐：有字符时间戳走字符对齐，否则按段时长均匀分布
func (e *Engine) stepAlign(j *job) State {
	j.chunks = make([]ChunkTiming, 0, len(j.segments))
	for idx, seg := range j.segments {
		res := j.results[idx]
		tokens := e.tokenizer.Words(seg.Text)

		var ct ChunkTiming
		switch {
		case res == nil:
			// 合成失败的段：均匀兜底，段时长按兜底语速估算
			words := e.fallback.Generate(tokens)
			est := float64(len(tokens)) / e.cfg.FallbackWordsPerSec
			ct = ChunkTiming{Result: RawChunkResult{Segment: seg, DurationSec: est}, Words: words}
		case len(res.CharAlignment) > 0:
			mapping := e.charAlign.Align([]rune(seg.Text), alignmentChars(res.CharAlignment))
			words, matched := WordTimingsFromChars(tokens, mapping, res.CharAlignment)
			ct = ChunkTiming{Result: *res, Words: words, Matched: matched}
		default:
			// 供应商未返回字符时间戳：预期情况，不是错误；
			// 先均匀分布，如配置了转写修正则在拼接后统一修正
			words := e.fallback.Distribute(tokens, res.DurationSec)
			ct = ChunkTiming{Result: *res, Words: words}
		}
		j.chunks = append(j.chunks, ct)
	}
	return StateMerging
}

// stepFallback 兜底支路：与 stepAlign 相同的逐段处理
// 合成失败的段在这里得到合成时间戳，成功的段照常对齐
func (e *Engine) stepFallback(j *job) State {
	return e.stepAlign(j)
}

// stepMerge 拼接 + 可选转写修正
func (e *Engine) stepMerge(ctx context.Context, j *job) State {
	j.merged = e.merger.Merge(j.chunks)
	j.matchedWords = j.merged.MatchedWords
	j.rawSec = j.merged.RawTotalSec
	j.measuredSec = j.merged.RawTotalSec

	if e.shouldRefine(j) {
		if err := e.refineWithTranscription(ctx, j); err != nil {
			log.Warn().Err(err).Msg("transcription refinement failed, keeping provider timing")
		}
	}
	return StateNormalizing
}

// shouldRefine 是否需要转写修正
// 显式开启、或存在没有字符对齐数据的段（AlignmentDataMissing 情况）时修正
func (e *Engine) shouldRefine(j *job) bool {
	if e.transcriber == nil || len(j.merged.Audio) == 0 {
		return false
	}
	if e.cfg.RefineWithTranscription {
		return true
	}
	for _, r := range j.results {
		if r != nil && len(r.CharAlignment) == 0 {
			return true
		}
	}
	return false
}

// refineWithTranscription 用独立转写结果修正整条时间轴
// 合成词序列与转写词序列做全局对齐；匹配词采用转写时间，
// gap 词在相邻匹配词之间插值
func (e *Engine) refineWithTranscription(ctx context.Context, j *job) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	tr, err := e.transcriber.Transcribe(callCtx, j.merged.Audio, j.voice.LanguageHint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	a := make([]string, len(j.merged.Words))
	for i, w := range j.merged.Words {
		a[i] = w.Word
	}
	b := make([]string, len(tr.Words))
	for i, w := range tr.Words {
		b[i] = w.Word
	}

	result := e.seqAlign.Align(a, b)

	matched := 0
	for i := range j.merged.Words {
		if bIdx := result.MapAtoB[i]; bIdx != Gap {
			j.merged.Words[i].StartSec = tr.Words[bIdx].StartSec
			j.merged.Words[i].EndSec = tr.Words[bIdx].EndSec
			j.merged.Words[i].IsSynthetic = false
			matched++
		}
	}
	interpolateGapWords(j.merged.Words, result.MapAtoB, tr.DurationSec)

	j.matchedWords = matched
	if tr.DurationSec > 0 {
		// 修正后词时间已经在转写时间尺度上，归一化只需钳制不需缩放
		j.rawSec = tr.DurationSec
		j.measuredSec = tr.DurationSec
	}
	log.Debug().
		Int("matched", matched).
		Int("total", len(j.merged.Words)).
		Float64("score", result.Score).
		Msg("transcription refinement applied")
	return nil
}

// interpolateGapWords 把对齐 gap 词的时间均匀插入相邻匹配词之间
func interpolateGapWords(words []WordTiming, mapAtoB []int, totalSec float64) {
	n := len(words)
	i := 0
	for i < n {
		if mapAtoB[i] != Gap {
			i++
			continue
		}

		// gap 连续区间 [i, k)
		k := i
		for k < n && mapAtoB[k] == Gap {
			k++
		}

		lo := 0.0
		if i > 0 {
			lo = words[i-1].EndSec
		}
		hi := totalSec
		if k < n {
			hi = words[k].StartSec
		}
		if hi < lo {
			hi = lo
		}

		span := hi - lo
		slot := span / float64(k-i)
		for t := i; t < k; t++ {
			words[t].StartSec = lo + slot*float64(t-i)
			words[t].EndSec = words[t].StartSec + slot
		}
		i = k
	}
}

// stepNormalize 归一化到实测时长
// 实测时长退化（零或非有限）等同转写失败，强制整轴兜底
func (e *Engine) stepNormalize(j *job) State {
	words, totalSec, err := e.normalizer.Normalize(j.merged.Words, j.rawSec, j.measuredSec)
	if err != nil {
		log.Warn().Err(err).Float64("measured_sec", j.measuredSec).Msg("degenerate measured duration, falling back")
		tokens := e.tokenizer.Words(j.text)
		words = e.fallback.Generate(tokens)
		totalSec = 0
		if len(words) > 0 {
			totalSec = words[len(words)-1].EndSec
		}
		j.matchedWords = 0
	}
	j.merged.Words = words
	j.measuredSec = totalSec
	return StateDone
}

// finish 组装最终产物并分级精度
func (e *Engine) finish(j *job) *Narration {
	return &Narration{
		Audio: j.merged.Audio,
		Timeline: &Timeline{
			Words:            j.merged.Words,
			TotalDurationSec: j.measuredSec,
			Accuracy:         classifyAccuracy(j.matchedWords, len(j.merged.Words)),
		},
		States: j.states,
	}
}

// classifyAccuracy 按直接匹配词占比分级
// perfect 的下界取开区间：恰好 90% 的轴已经有插值词，归入 good
func classifyAccuracy(matched, total int) Accuracy {
	if total == 0 {
		return AccuracyFallback
	}
	frac := float64(matched) / float64(total)
	switch {
	case frac > 0.9 || matched == total:
		return AccuracyPerfect
	case frac >= 0.7:
		return AccuracyGood
	default:
		return AccuracyFallback
	}
}

// alignmentChars 提取供应商字符序列
func alignmentChars(ca CharAlignment) []string {
	chars := make([]string, len(ca))
	for i, c := range ca {
		chars[i] = c.Char
	}
	return chars
}
