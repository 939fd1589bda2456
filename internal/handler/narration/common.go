package narration

import (
	"time"

	"fable/internal/model/narration"
	httputil "fable/internal/pkg/http"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// JobInfo 任务信息（用于响应）
type JobInfo struct {
	ID          string  `json:"id"`                     // 任务ID
	BookID      string  `json:"book_id"`                // 书籍ID
	PageID      string  `json:"page_id"`                // 页面ID
	Status      string  `json:"status"`                 // 状态：pending, processing, completed, failed
	Accuracy    string  `json:"accuracy,omitempty"`     // 时间轴精度：perfect, good, fallback
	AudioURL    string  `json:"audio_url,omitempty"`    // 音频访问URL
	DurationSec float64 `json:"duration_sec,omitempty"` // 音频总时长（秒）
	WordCount   int     `json:"word_count,omitempty"`   // 时间轴词数
	Error       string  `json:"error,omitempty"`        // 失败原因
	CreatedAt   string  `json:"created_at"`             // 创建时间
	CompletedAt string  `json:"completed_at,omitempty"` // 完成时间
}

// toJobInfo 将Job实体转换为JobInfo
func toJobInfo(job *narration.Job) JobInfo {
	info := JobInfo{
		ID:          job.ID,
		BookID:      job.BookID,
		PageID:      job.PageID,
		Status:      string(job.Status),
		Accuracy:    string(job.Accuracy),
		AudioURL:    job.AudioURL,
		DurationSec: job.DurationSec,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
	}
	if job.Timeline != nil {
		info.WordCount = len(job.Timeline.Words)
	}
	if job.CompletedAt != nil {
		info.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return info
}

// toJobInfoList 将Job列表转换为JobInfo列表
func toJobInfoList(jobs []*narration.Job) []JobInfo {
	infos := make([]JobInfo, 0, len(jobs))
	for _, job := range jobs {
		infos = append(infos, toJobInfo(job))
	}
	return infos
}
