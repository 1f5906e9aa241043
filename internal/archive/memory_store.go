package archive

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "UB-Client/internal/errors"
)

// MemoryStore 以内存方式保存任务与归档记录，主要用于测试与单机部署。
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	records map[uint64]*Record
	now     func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*Job),
		records: make(map[uint64]*Record),
		now:     time.Now,
	}
}

// CreateJob 实现 Store 接口。
func (m *MemoryStore) CreateJob(_ context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if job.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrJobConflict
	}
	now := m.now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob 返回任务。
func (m *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Claim 将任务状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	switch job.Status {
	case StatusSucceeded:
		return cloneJob(job), ErrJobCompleted
	case StatusRunning:
		return cloneJob(job), ErrJobConflict
	}
	if job.Attempts >= job.MaxRetries {
		return cloneJob(job), ErrJobExhausted
	}
	job.Status = StatusRunning
	job.Attempts++
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = m.now().Unix()
	return cloneJob(job), nil
}

// MarkSucceeded 保存归档记录并完成任务。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	now := m.now().Unix()
	record.Index = job.Index
	record.ArchivedAt = now
	m.records[record.Index] = cloneRecord(&record)

	job.Status = StatusSucceeded
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = now
	return nil
}

// MarkFailed 标记任务失败，终止性失败会耗尽重试次数。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusFailed
	job.LastError = lastError
	job.ErrorCode = string(code)
	if terminal && job.Attempts < job.MaxRetries {
		job.Attempts = job.MaxRetries
	}
	job.UpdatedAt = m.now().Unix()
	return nil
}

// GetRecord 返回指定索引的归档记录。
func (m *MemoryStore) GetRecord(_ context.Context, index uint64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[index]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

// ListRecords 返回符合过滤条件的归档记录。
func (m *MemoryStore) ListRecords(_ context.Context, opts ListOptions) ([]*Record, error) {
	opts.applyDefaults()

	m.mu.RLock()
	results := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		if matchesListFilters(record, opts) {
			results = append(results, cloneRecord(record))
		}
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByIndexAsc {
			return results[i].Index < results[j].Index
		}
		return results[i].Index > results[j].Index
	})

	if opts.Offset >= len(results) {
		return []*Record{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计任务状态与归档记录。
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{HighestIndex: -1}
	for _, job := range m.jobs {
		stats.Jobs.Total++
		switch job.Status {
		case StatusPending:
			stats.Jobs.Pending++
		case StatusRunning:
			stats.Jobs.Running++
		case StatusSucceeded:
			stats.Jobs.Succeeded++
		case StatusFailed:
			stats.Jobs.Failed++
		}
	}
	for _, record := range m.records {
		stats.Records++
		if record.Restricted {
			stats.Restricted++
		}
		if record.Removed() {
			stats.Removed++
		}
		if int64(record.Index) > stats.HighestIndex {
			stats.HighestIndex = int64(record.Index)
		}
		if record.ArchivedAt > stats.NewestArchivedAt {
			stats.NewestArchivedAt = record.ArchivedAt
		}
		if stats.OldestArchivedAt == 0 || record.ArchivedAt < stats.OldestArchivedAt {
			stats.OldestArchivedAt = record.ArchivedAt
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
