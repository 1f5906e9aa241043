package archive

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "UB-Client/internal/errors"
	"UB-Client/pkg/logger"

	"github.com/google/uuid"
)

// MaxSyncSpan 限制单次同步请求可创建的任务数量。
const MaxSyncSpan = 1000

// PostCounter 返回链上帖子总数，用于补全开放的同步区间。
type PostCounter interface {
	TotalPosts(ctx context.Context) (uint64, error)
}

// Service 负责归档任务的创建与归档数据的查询。
type Service struct {
	store      Store
	producer   Producer
	counter    PostCounter
	maxRetries int
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithPostCounter 允许 Sync 在 to 为 0 时同步到最新帖子。
func WithPostCounter(counter PostCounter) ServiceOption {
	return func(s *Service) {
		s.counter = counter
	}
}

// WithMaxRetries 设置每个任务的最大尝试次数。
func WithMaxRetries(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// NewService 构造归档服务。
func NewService(store Store, producer Producer, opts ...ServiceOption) *Service {
	s := &Service{store: store, producer: producer, maxRetries: 3}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Sync 为 [from, to) 中的每个索引创建任务并投递到队列。to 为 0 时使用链上帖子总数。
func (s *Service) Sync(ctx context.Context, from, to uint64) ([]*Job, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "归档服务未初始化")
	}
	if to == 0 {
		if s.counter == nil {
			return nil, xerrors.New(CodeSyncValidation, "未指定同步终点")
		}
		total, err := s.counter.TotalPosts(ctx)
		if err != nil {
			return nil, err
		}
		to = total
	}
	if from >= to {
		return nil, xerrors.New(CodeSyncValidation, fmt.Sprintf("同步区间 [%d, %d) 为空", from, to))
	}
	if to-from > MaxSyncSpan {
		return nil, xerrors.New(CodeSyncValidation, fmt.Sprintf("单次最多同步 %d 个帖子", MaxSyncSpan))
	}

	jobs := make([]*Job, 0, to-from)
	for idx := from; idx < to; idx++ {
		job := &Job{
			ID:         uuid.NewString(),
			Index:      idx,
			Status:     StatusPending,
			MaxRetries: s.maxRetries,
		}
		if err := s.store.CreateJob(ctx, job); err != nil {
			return jobs, err
		}
		if err := s.producer.Publish(ctx, job.ID); err != nil {
			logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("job_id", job.ID))
			wrapped := xerrors.Wrap(CodeJobPublish, err, "发布任务到队列失败")
			_ = s.store.MarkFailed(ctx, job.ID, CodeJobPublish, wrapped.Error(), true)
			return jobs, wrapped
		}
		jobs = append(jobs, job)
	}
	logger.Audit().Info("归档同步已入队",
		slog.Uint64("from", from),
		slog.Uint64("to", to),
		slog.Int("jobs", len(jobs)),
	)
	return jobs, nil
}

// Job 返回指定任务的状态。
func (s *Service) Job(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "归档存储未初始化")
	}
	return s.store.GetJob(ctx, id)
}

// Post 返回指定索引的归档记录。
func (s *Service) Post(ctx context.Context, index uint64) (*Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "归档存储未初始化")
	}
	return s.store.GetRecord(ctx, index)
}

// Posts 返回符合过滤条件的归档记录。
func (s *Service) Posts(ctx context.Context, opts ...ListOption) ([]*Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "归档存储未初始化")
	}
	return s.store.ListRecords(ctx, buildListOptions(opts))
}

// Stats 返回归档统计信息。
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "归档存储未初始化")
	}
	return s.store.Stats(ctx)
}

// WaitUntilDone 轮询任务直到其进入最终状态。
func (s *Service) WaitUntilDone(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}
