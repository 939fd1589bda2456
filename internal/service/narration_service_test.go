package service

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/mongo"

	"fable/internal/model/narration"
	"fable/internal/pkg/speech"
	narrationRepo "fable/internal/repository/narration"
)

// fakeJobRepo 内存任务仓库，记录状态流转供断言
type fakeJobRepo struct {
	created  []*narration.Job
	statuses []narration.Status
	savedIDs []string
	failed   []string
	latest   *narration.Job
}

var _ narrationRepo.JobRepository = (*fakeJobRepo)(nil)

func (r *fakeJobRepo) Create(_ context.Context, job *narration.Job) error {
	if job.Status == "" {
		job.Status = narration.StatusPending
	}
	r.created = append(r.created, job)
	return nil
}

func (r *fakeJobRepo) FindByID(_ context.Context, id string) (*narration.Job, error) {
	for _, job := range r.created {
		if job.ID == id {
			return job, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *fakeJobRepo) FindLatestByPage(_ context.Context, bookID, pageID string) (*narration.Job, error) {
	if r.latest == nil || r.latest.BookID != bookID || r.latest.PageID != pageID {
		return nil, mongo.ErrNoDocuments
	}
	return r.latest, nil
}

func (r *fakeJobRepo) ListByBook(_ context.Context, bookID string, _ int64) ([]*narration.Job, error) {
	var jobs []*narration.Job
	for _, job := range r.created {
		if job.BookID == bookID {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (r *fakeJobRepo) UpdateStatus(_ context.Context, id string, status narration.Status) error {
	r.statuses = append(r.statuses, status)
	for _, job := range r.created {
		if job.ID == id {
			job.Status = status
		}
	}
	return nil
}

func (r *fakeJobRepo) SaveResult(_ context.Context, id string, _, _ string, _ *speech.Timeline) error {
	r.savedIDs = append(r.savedIDs, id)
	return nil
}

func (r *fakeJobRepo) MarkFailed(_ context.Context, id string, _ string) error {
	r.failed = append(r.failed, id)
	return nil
}

// stubSynthesizer 返回逐字符 100ms 的完整时间戳
type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(_ context.Context, req speech.SynthesisRequest) (*speech.SynthesisResult, error) {
	rs := []rune(req.Text)
	chars := make(speech.CharAlignment, 0, len(rs))
	for i, r := range rs {
		chars = append(chars, speech.CharTiming{
			Char:       string(r),
			StartMs:    float64(i) * 100,
			DurationMs: 100,
		})
	}
	return &speech.SynthesisResult{
		AudioBytes:    []byte(req.Text),
		DurationSec:   float64(len(rs)) * 0.1,
		CharAlignment: chars,
	}, nil
}

func newTestService(repo *fakeJobRepo) *NarrationService {
	engine, err := speech.NewEngine(speech.DefaultConfig(), stubSynthesizer{})
	if err != nil {
		panic(err)
	}
	return NewNarrationService(engine, repo, nil, nil)
}

func TestNarrationService_Synthesize(t *testing.T) {
	Convey("Synthesize 驱动任务状态流转并落库结果", t, func() {
		ctx := context.Background()
		repo := &fakeJobRepo{}
		svc := newTestService(repo)

		job, err := svc.Synthesize(ctx, SynthesizeParams{
			BookID: "book-1",
			PageID: "page-1",
			Text:   "uno dos",
		})

		So(err, ShouldBeNil)
		So(job.Status, ShouldEqual, narration.StatusCompleted)
		So(job.Timeline, ShouldNotBeNil)
		So(len(job.Timeline.Words), ShouldEqual, 2)

		Convey("任务以 pending 创建，执行前转入 processing", func() {
			So(len(repo.created), ShouldEqual, 1)
			So(repo.statuses, ShouldResemble, []narration.Status{narration.StatusProcessing})
		})

		Convey("结果写回同一任务", func() {
			So(repo.savedIDs, ShouldResemble, []string{job.ID})
			So(repo.failed, ShouldBeEmpty)
		})
	})
}

func TestNarrationService_GetLatestForPage(t *testing.T) {
	Convey("GetLatestForPage 查询页面最新任务", t, func() {
		ctx := context.Background()

		Convey("存在任务时原样返回", func() {
			want := &narration.Job{
				ID:     "job-1",
				BookID: "book-1",
				PageID: "page-1",
				Status: narration.StatusCompleted,
			}
			svc := newTestService(&fakeJobRepo{latest: want})

			job, err := svc.GetLatestForPage(ctx, "book-1", "page-1")

			So(err, ShouldBeNil)
			So(job, ShouldEqual, want)
		})

		Convey("页面无任务时返回 ErrJobNotFound", func() {
			svc := newTestService(&fakeJobRepo{})

			_, err := svc.GetLatestForPage(ctx, "book-1", "page-9")

			So(errors.Is(err, ErrJobNotFound), ShouldBeTrue)
		})
	})
}
