package narration

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fable/internal/pkg/speech"
)

// Job 旁白合成任务实体
// 一次任务对应一段原文的完整合成：音频制品 + 逐词时间轴。
// 时间轴在任务完成后不可变，逐词高亮直接消费 Timeline 字段
type Job struct {
	ID     string `bson:"id" json:"id"`           // 任务ID（UUID）
	BookID string `bson:"book_id" json:"book_id"` // 所属书籍ID
	PageID string `bson:"page_id" json:"page_id"` // 所属页面/章节ID

	// 输入
	Text  string             `bson:"text" json:"text"`   // 原文（时间轴偏移指向该文本的 rune 偏移）
	Voice speech.VoiceConfig `bson:"voice" json:"voice"` // 音色配置

	// 输出
	AudioKey    string           `bson:"audio_key,omitempty" json:"audio_key,omitempty"`       // 音频制品的存储 key
	AudioURL    string           `bson:"audio_url,omitempty" json:"audio_url,omitempty"`       // 音频访问 URL
	Timeline    *speech.Timeline `bson:"timeline,omitempty" json:"timeline,omitempty"`         // 逐词时间轴
	Accuracy    speech.Accuracy  `bson:"accuracy,omitempty" json:"accuracy,omitempty"`         // 时间轴精度分级
	DurationSec float64          `bson:"duration_sec,omitempty" json:"duration_sec,omitempty"` // 音频总时长（秒）

	// 状态
	Status Status `bson:"status" json:"status"`
	Error  string `bson:"error,omitempty" json:"error,omitempty"` // 失败原因

	// 时间戳
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Status 任务状态
type Status string

const (
	StatusPending    Status = "pending"    // 待处理
	StatusProcessing Status = "processing" // 合成中
	StatusCompleted  Status = "completed"  // 已完成
	StatusFailed     Status = "failed"     // 失败
)

// Collection 返回集合名称
func (j *Job) Collection() string {
	return "narration_jobs"
}

// EnsureIndexes 创建和维护索引
func (j *Job) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(j.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys:    bson.D{bson.E{Key: "book_id", Value: 1}, bson.E{Key: "page_id", Value: 1}},
			Options: options.Index().SetName("idx_book_page"),
		},
		{
			Keys:    bson.D{bson.E{Key: "status", Value: 1}, bson.E{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_status_created"),
		},
	}

	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
