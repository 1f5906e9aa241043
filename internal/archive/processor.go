package archive

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"UB-Client/internal/bulletin"
	xerrors "UB-Client/internal/errors"
	"UB-Client/internal/observability/alerting"
	"UB-Client/internal/observability/metrics"
	"UB-Client/pkg/logger"
)

// PostFetcher 是处理器读取帖子所需的能力，bulletin.Reader、Session 与 Client 均满足。
type PostFetcher interface {
	PostAtIndex(ctx context.Context, idx uint64) (*bulletin.Post, error)
}

// Processor 负责从队列消费归档任务并抓取帖子。
type Processor struct {
	fetcher     PostFetcher
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	retryDelay  time.Duration
	requeues    sync.WaitGroup
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithAlertDispatcher 在任务进入终态失败时发送告警。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithRetryDelay 设置失败任务重新入队前的等待时间。
func WithRetryDelay(delay time.Duration) ProcessorOption {
	return func(p *Processor) {
		if delay > 0 {
			p.retryDelay = delay
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(fetcher PostFetcher, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		fetcher:     fetcher,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("archive"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	err := p.consumer.Consume(ctx, p.workerCount, p.handle)
	p.requeues.Wait()
	return err
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.fetcher == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if isSkippable(err) {
			p.logger.Debug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	post, fetchErr := p.fetcher.PostAtIndex(ctx, job.Index)
	if fetchErr != nil {
		return p.handleFetchFailure(ctx, job, fetchErr)
	}

	record := RecordFromPost(job.Index, post)
	if err := p.store.MarkSucceeded(ctx, job.ID, record); err != nil {
		p.logger.Error("保存归档记录失败", slog.Any("error", err), slog.String("job_id", job.ID))
		p.emitAlert(ctx, job, xerrors.CodeStorageFailure, err, "store")
		if storeErr := p.store.MarkFailed(ctx, job.ID, xerrors.CodeStorageFailure, err.Error(), false); storeErr != nil {
			return storeErr
		}
		p.requeue(ctx, job)
		return nil
	}

	outcome := "succeeded"
	if record.Restricted {
		outcome = "restricted"
	}
	metrics.ObserveArchiveJob(outcome)
	p.logger.Debug("帖子已归档",
		slog.String("job_id", job.ID),
		slog.Uint64("index", job.Index),
		slog.Bool("restricted", record.Restricted))
	return nil
}

func (p *Processor) handleFetchFailure(ctx context.Context, job *Job, fetchErr error) error {
	code := xerrors.CodeOf(fetchErr)
	if code == xerrors.CodeUnknown {
		code = CodeArchiveFetchFail
	}
	retryable := xerrors.RetryableError(fetchErr) && !stdErrors.Is(fetchErr, bulletin.ErrIndexTooHigh)
	terminal := job.Attempts >= job.MaxRetries || !retryable

	if err := p.store.MarkFailed(ctx, job.ID, code, fetchErr.Error(), terminal); err != nil {
		p.logger.Error("标记任务失败状态出错", slog.Any("error", err), slog.String("job_id", job.ID))
		return err
	}
	p.logger.Warn("帖子抓取失败",
		slog.String("job_id", job.ID),
		slog.Uint64("index", job.Index),
		slog.Bool("terminal", terminal),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Any("error", fetchErr))

	if terminal {
		metrics.ObserveArchiveJob("failed")
		if !stdErrors.Is(fetchErr, bulletin.ErrIndexTooHigh) {
			p.emitAlert(ctx, job, code, fetchErr, "fetch")
		}
		return nil
	}
	p.requeue(ctx, job)
	return nil
}

// requeue 在独立协程中重新投递任务，工作协程不阻塞在自己消费的队列上。
func (p *Processor) requeue(ctx context.Context, job *Job) {
	metrics.ObserveArchiveJob("retried")
	p.requeues.Add(1)
	go func() {
		defer p.requeues.Done()
		if p.retryDelay > 0 {
			timer := time.NewTimer(p.retryDelay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		err := p.producer.Publish(ctx, job.ID)
		if err == nil || ctx.Err() != nil {
			return
		}
		pubErr := xerrors.Wrap(CodeJobPublish, err, fmt.Sprintf("任务 %s 重投失败", job.ID))
		p.logger.Error("重投任务失败", slog.Any("error", pubErr), slog.String("job_id", job.ID))
		if markErr := p.store.MarkFailed(ctx, job.ID, CodeJobPublish, pubErr.Error(), true); markErr != nil {
			p.logger.Error("标记任务失败状态出错", slog.Any("error", markErr), slog.String("job_id", job.ID))
		}
		metrics.ObserveArchiveJob("failed")
		p.emitAlert(ctx, job, CodeJobPublish, pubErr, "requeue")
	}()
}

func (p *Processor) emitAlert(ctx context.Context, job *Job, code xerrors.Code, cause error, stage string) {
	if p.alerter == nil || job == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		JobID:      job.ID,
		Index:      job.Index,
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Metadata:   map[string]string{"stage": stage},
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败", slog.Any("error", err), slog.String("job_id", job.ID), slog.String("stage", stage))
	}
}
