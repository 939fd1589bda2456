package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"fable/internal/model/narration"
	"fable/internal/pkg/cache"
	"fable/internal/pkg/id"
	"fable/internal/pkg/speech"
	"fable/internal/pkg/storage"
	narrationRepo "fable/internal/repository/narration"
)

// 服务级错误
var (
	ErrJobNotFound   = errors.New("narration job not found")
	ErrJobInProgress = errors.New("narration job already in progress for this page")
)

// NarrationService 旁白合成服务
// 封装一次完整的合成流程：任务去重加锁、引擎执行、音频制品落存储、
// 任务与时间轴落库。时间轴总会产出（除非输入非法），精度由 Accuracy 告知
type NarrationService struct {
	engine *speech.Engine
	jobs   narrationRepo.JobRepository
	cache  *cache.RedisCache // 可选，缺省时跳过加锁与时间轴缓存
	store  storage.Storage   // 可选，缺省时音频不持久化
}

// NewNarrationService 创建旁白合成服务
func NewNarrationService(engine *speech.Engine, jobs narrationRepo.JobRepository, redisCache *cache.RedisCache, store storage.Storage) *NarrationService {
	return &NarrationService{
		engine: engine,
		jobs:   jobs,
		cache:  redisCache,
		store:  store,
	}
}

// SynthesizeParams 合成请求参数
type SynthesizeParams struct {
	BookID string
	PageID string
	Text   string
	Voice  speech.VoiceConfig
}

// Synthesize 同步执行一次旁白合成
// 同一页面的并发请求用 Redis SETNX 去重，后到的请求直接返回 ErrJobInProgress
func (s *NarrationService) Synthesize(ctx context.Context, params SynthesizeParams) (*narration.Job, error) {
	if s.cache != nil {
		lockKey := cache.NarrationJobLockKey(jobFingerprint(params))
		ok, err := s.cache.AcquireLock(ctx, lockKey, cache.NarrationJobLockTTL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to acquire narration job lock, continuing without dedup")
		} else if !ok {
			return nil, ErrJobInProgress
		} else {
			defer func() {
				if err := s.cache.ReleaseLock(context.Background(), lockKey); err != nil {
					log.Warn().Err(err).Msg("failed to release narration job lock")
				}
			}()
		}
	}

	job := &narration.Job{
		ID:     id.New(),
		BookID: params.BookID,
		PageID: params.PageID,
		Text:   params.Text,
		Voice:  params.Voice,
		Status: narration.StatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create narration job: %w", err)
	}

	if err := s.jobs.UpdateStatus(ctx, job.ID, narration.StatusProcessing); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to mark narration job processing")
	}
	job.Status = narration.StatusProcessing

	result, err := s.engine.Narrate(ctx, params.Text, params.Voice)
	if err != nil {
		if markErr := s.jobs.MarkFailed(context.Background(), job.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Str("job_id", job.ID).Msg("failed to mark narration job failed")
		}
		return nil, err
	}

	audioKey, audioURL := s.persistAudio(ctx, job, result.Audio)

	if err := s.jobs.SaveResult(ctx, job.ID, audioKey, audioURL, result.Timeline); err != nil {
		return nil, fmt.Errorf("save narration result: %w", err)
	}
	s.cacheTimeline(ctx, job.ID, result.Timeline)

	now := time.Now()
	job.Status = narration.StatusCompleted
	job.AudioKey = audioKey
	job.AudioURL = audioURL
	job.Timeline = result.Timeline
	job.Accuracy = result.Timeline.Accuracy
	job.DurationSec = result.Timeline.TotalDurationSec
	job.CompletedAt = &now

	log.Info().
		Str("job_id", job.ID).
		Str("book_id", job.BookID).
		Str("page_id", job.PageID).
		Str("accuracy", string(job.Accuracy)).
		Float64("duration_sec", job.DurationSec).
		Int("words", len(result.Timeline.Words)).
		Msg("narration job completed")
	return job, nil
}

// GetJob 查询任务
func (s *NarrationService) GetJob(ctx context.Context, jobID string) (*narration.Job, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// GetTimeline 查询任务时间轴（优先 Redis 缓存）
func (s *NarrationService) GetTimeline(ctx context.Context, jobID string) (*speech.Timeline, error) {
	if s.cache != nil {
		var timeline speech.Timeline
		if err := s.cache.Get(ctx, cache.TimelineCacheKey(jobID), &timeline); err == nil {
			return &timeline, nil
		}
	}

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Timeline == nil {
		return nil, ErrJobNotFound
	}
	s.cacheTimeline(ctx, jobID, job.Timeline)
	return job.Timeline, nil
}

// GetLatestForPage 查询页面最新的旁白任务
// 阅读端重进页面时先查已有任务，复用完成的结果而不是重新合成
func (s *NarrationService) GetLatestForPage(ctx context.Context, bookID, pageID string) (*narration.Job, error) {
	job, err := s.jobs.FindLatestByPage(ctx, bookID, pageID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByBook 查询书籍下的任务
func (s *NarrationService) ListByBook(ctx context.Context, bookID string, limit int64) ([]*narration.Job, error) {
	return s.jobs.ListByBook(ctx, bookID, limit)
}

// persistAudio 把音频制品写入对象存储
// 存储不可用或上传失败只降级（任务仍然成功），音频留在时间轴之外
func (s *NarrationService) persistAudio(ctx context.Context, job *narration.Job, audio []byte) (string, string) {
	if s.store == nil || len(audio) == 0 {
		return "", ""
	}

	key := fmt.Sprintf("narrations/%s/%s/%s.mp3", job.BookID, job.PageID, job.ID)
	url, err := s.store.Upload(ctx, key, bytes.NewReader(audio), "audio/mpeg")
	if err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to upload narration audio")
		return "", ""
	}
	return key, url
}

// cacheTimeline 时间轴写入 Redis 缓存，失败仅记录
func (s *NarrationService) cacheTimeline(ctx context.Context, jobID string, timeline *speech.Timeline) {
	if s.cache == nil || timeline == nil {
		return
	}
	if err := s.cache.Set(ctx, cache.TimelineCacheKey(jobID), timeline, cache.TimelineCacheTTL); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("failed to cache timeline")
	}
}

// jobFingerprint 任务指纹：同一页面同一文本同一音色视为同一任务
func jobFingerprint(params SynthesizeParams) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", params.BookID, params.PageID, params.Text, params.Voice.Provider, params.Voice.VoiceID)
	return hex.EncodeToString(h.Sum(nil)[:16])
}
