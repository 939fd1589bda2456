package narration

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fable/internal/model/narration"
	"fable/internal/pkg/speech"
)

// JobRepository 旁白任务仓库接口
type JobRepository interface {
	Create(ctx context.Context, job *narration.Job) error
	FindByID(ctx context.Context, id string) (*narration.Job, error)
	FindLatestByPage(ctx context.Context, bookID, pageID string) (*narration.Job, error)
	ListByBook(ctx context.Context, bookID string, limit int64) ([]*narration.Job, error)
	UpdateStatus(ctx context.Context, id string, status narration.Status) error
	SaveResult(ctx context.Context, id string, audioKey, audioURL string, timeline *speech.Timeline) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// JobRepo 旁白任务仓库实现
type JobRepo struct {
	coll *mongo.Collection
}

// NewJobRepo 创建旁白任务仓库
func NewJobRepo(db *mongo.Database) *JobRepo {
	var j narration.Job
	return &JobRepo{coll: db.Collection(j.Collection())}
}

// Create 创建任务
func (r *JobRepo) Create(ctx context.Context, job *narration.Job) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = narration.StatusPending
	}
	_, err := r.coll.InsertOne(ctx, job)
	return err
}

// FindByID 根据ID查询任务
func (r *JobRepo) FindByID(ctx context.Context, id string) (*narration.Job, error) {
	var job narration.Job
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// FindLatestByPage 查询页面最新的任务
func (r *JobRepo) FindLatestByPage(ctx context.Context, bookID, pageID string) (*narration.Job, error) {
	var job narration.Job
	filter := bson.M{"book_id": bookID, "page_id": pageID}
	opts := options.FindOne().SetSort(bson.M{"created_at": -1})
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByBook 查询书籍下的任务（按创建时间倒序）
func (r *JobRepo) ListByBook(ctx context.Context, bookID string, limit int64) ([]*narration.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)
	cursor, err := r.coll.Find(ctx, bson.M{"book_id": bookID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []*narration.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateStatus 更新任务状态
func (r *JobRepo) UpdateStatus(ctx context.Context, id string, status narration.Status) error {
	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{
			"status":     status,
			"updated_at": time.Now(),
		}},
	)
	return err
}

// SaveResult 保存合成结果并标记完成
func (r *JobRepo) SaveResult(ctx context.Context, id string, audioKey, audioURL string, timeline *speech.Timeline) error {
	now := time.Now()
	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{
			"status":       narration.StatusCompleted,
			"audio_key":    audioKey,
			"audio_url":    audioURL,
			"timeline":     timeline,
			"accuracy":     timeline.Accuracy,
			"duration_sec": timeline.TotalDurationSec,
			"completed_at": now,
			"updated_at":   now,
		}},
	)
	return err
}

// MarkFailed 标记任务失败
func (r *JobRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{
			"status":     narration.StatusFailed,
			"error":      reason,
			"updated_at": time.Now(),
		}},
	)
	return err
}
