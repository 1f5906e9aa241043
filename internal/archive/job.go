package archive

import (
	stdErrors "errors"

	"UB-Client/internal/bulletin"
	xerrors "UB-Client/internal/errors"
)

// Status 表示同步任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job 描述了一次针对单个帖子索引的归档任务。
type Job struct {
	ID         string `json:"id"`
	Index      uint64 `json:"index"`
	Status     Status `json:"status"`
	Attempts   int    `json:"attempts"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// Done reports whether the job reached a final state.
func (j *Job) Done() bool {
	if j == nil {
		return false
	}
	if j.Status == StatusSucceeded {
		return true
	}
	return j.Status == StatusFailed && j.Attempts >= j.MaxRetries
}

// Record 是归档后的帖子。Restricted 表示调用方无权读取内容。
type Record struct {
	Index         uint64            `json:"index"`
	Restricted    bool              `json:"restricted"`
	Type          bulletin.PostType `json:"type"`
	Title         string            `json:"title,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Content       string            `json:"content,omitempty"`
	Author        string            `json:"author,omitempty"`
	AuthorAddress string            `json:"author_address,omitempty"`
	Timestamp     int64             `json:"timestamp,omitempty"`
	ArchivedAt    int64             `json:"archived_at"`
}

// RecordFromPost converts a fetched post. A nil post yields a restricted
// record.
func RecordFromPost(index uint64, post *bulletin.Post) Record {
	if post == nil {
		return Record{Index: index, Restricted: true}
	}
	return Record{
		Index:         index,
		Type:          post.Type,
		Title:         post.Title,
		Summary:       post.Summary,
		Content:       post.Content,
		Author:        post.Author,
		AuthorAddress: post.AuthorAddress.Hex(),
		Timestamp:     post.Timestamp,
	}
}

// Removed reports whether the archived post was removed by its author.
func (r *Record) Removed() bool {
	return r != nil && !r.Restricted && r.Type == bulletin.PostDeleted
}

const (
	CodeJobNotFound      xerrors.Code = "ARCHIVE_JOB_NOT_FOUND"
	CodeJobConflict      xerrors.Code = "ARCHIVE_JOB_CONFLICT"
	CodeJobCompleted     xerrors.Code = "ARCHIVE_JOB_COMPLETED"
	CodeJobExhausted     xerrors.Code = "ARCHIVE_JOB_RETRIES_EXHAUSTED"
	CodeRecordNotFound   xerrors.Code = "ARCHIVE_RECORD_NOT_FOUND"
	CodeSyncValidation   xerrors.Code = "ARCHIVE_SYNC_VALIDATION_FAILED"
	CodeJobPublish       xerrors.Code = "ARCHIVE_JOB_PUBLISH_FAILED"
	CodeArchiveFetchFail xerrors.Code = "ARCHIVE_FETCH_FAILED"
)

var (
	// ErrJobNotFound 表示指定的任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "archive job not found")
	// ErrJobConflict 表示任务在当前状态下无法执行请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "archive job conflict")
	// ErrJobCompleted 表示任务已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "archive job already completed")
	// ErrJobExhausted 表示任务的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "archive job retries exhausted")
	// ErrRecordNotFound 表示该索引尚未归档。
	ErrRecordNotFound = xerrors.New(CodeRecordNotFound, "post not archived")
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{Message: "archive job not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{Message: "archive job conflict", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{Message: "archive job already completed", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{Message: "archive job retries exhausted", Severity: xerrors.SeverityCritical})
	xerrors.Register(CodeRecordNotFound, xerrors.Attributes{Message: "post not archived", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeSyncValidation, xerrors.Attributes{Message: "invalid sync range", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{Message: "failed to publish archive job", Severity: xerrors.SeverityCritical, Retryable: true})
	xerrors.Register(CodeArchiveFetchFail, xerrors.Attributes{Message: "post fetch failed", Severity: xerrors.SeverityWarning, Retryable: true})
}

// isSkippable 判断领取任务时返回的错误是否只需跳过。
func isSkippable(err error) bool {
	return stdErrors.Is(err, ErrJobNotFound) ||
		stdErrors.Is(err, ErrJobCompleted) ||
		stdErrors.Is(err, ErrJobExhausted) ||
		stdErrors.Is(err, ErrJobConflict)
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneJob(job *Job) *Job {
	clone := *job
	return &clone
}

func cloneRecord(record *Record) *Record {
	clone := *record
	return &clone
}
