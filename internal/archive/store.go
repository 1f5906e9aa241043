package archive

import (
	"context"

	xerrors "UB-Client/internal/errors"
)

// Store 抽象了归档任务与帖子记录的持久化接口。
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	Claim(ctx context.Context, id string) (*Job, error)
	// MarkSucceeded persists record and completes the job atomically.
	MarkSucceeded(ctx context.Context, id string, record Record) error
	// MarkFailed records a failure; terminal failures exhaust the job.
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	GetRecord(ctx context.Context, index uint64) (*Record, error)
	ListRecords(ctx context.Context, opts ListOptions) ([]*Record, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
