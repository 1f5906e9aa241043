package archive

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	"UB-Client/internal/bulletin"
	xerrors "UB-Client/internal/errors"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 保存归档任务与帖子记录。
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore 连接 MySQL 并执行内嵌的迁移脚本。
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 MySQL DSN 失败")
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := newMySQLStore(db)
	if err := store.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化归档表失败")
	}
	return store, nil
}

func newMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

const jobColumns = `id, post_index, status, attempts, max_retries, last_error, error_code, created_at, updated_at`

const recordColumns = `post_index, restricted, post_type, title, summary, content, author, author_address, posted_at, archived_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	if err := row.Scan(
		&job.ID,
		&job.Index,
		&job.Status,
		&job.Attempts,
		&job.MaxRetries,
		&job.LastError,
		&job.ErrorCode,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanRecord(row rowScanner) (*Record, error) {
	var record Record
	var postType uint64
	if err := row.Scan(
		&record.Index,
		&record.Restricted,
		&postType,
		&record.Title,
		&record.Summary,
		&record.Content,
		&record.Author,
		&record.AuthorAddress,
		&record.Timestamp,
		&record.ArchivedAt,
	); err != nil {
		return nil, err
	}
	record.Type = bulletin.PostType(postType)
	return &record, nil
}

// CreateJob 插入新的任务记录。
func (s *MySQLStore) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if strings.TrimSpace(job.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	now := s.now().Unix()
	job.CreatedAt = now
	job.UpdatedAt = now

	const stmt = `INSERT INTO archive_jobs
        (id, post_index, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		job.ID,
		job.Index,
		string(job.Status),
		job.Attempts,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	return nil
}

// GetJob 查询指定任务。
func (s *MySQLStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM archive_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return job, nil
}

// Claim 将任务标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Job, error) {
	const stmt = `UPDATE archive_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusRunning),
		s.now().Unix(),
		id,
		string(StatusPending),
		string(StatusFailed),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected > 0 {
		return job, nil
	}
	switch {
	case job.Status == StatusSucceeded:
		return job, ErrJobCompleted
	case job.Status == StatusRunning:
		return job, ErrJobConflict
	case job.Attempts >= job.MaxRetries:
		return job, ErrJobExhausted
	default:
		return job, ErrJobConflict
	}
}

// MarkSucceeded 在同一事务中写入归档记录并完成任务。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, record Record) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	now := s.now().Unix()
	record.Index = job.Index
	record.ArchivedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}

	const upsert = `INSERT INTO archive_posts
        (post_index, restricted, post_type, title, summary, content, author, author_address, posted_at, archived_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE restricted = VALUES(restricted), post_type = VALUES(post_type), title = VALUES(title),
        summary = VALUES(summary), content = VALUES(content), author = VALUES(author),
        author_address = VALUES(author_address), posted_at = VALUES(posted_at), archived_at = VALUES(archived_at)`

	if _, err := tx.ExecContext(ctx, upsert,
		record.Index,
		record.Restricted,
		uint64(record.Type),
		record.Title,
		record.Summary,
		record.Content,
		record.Author,
		record.AuthorAddress,
		record.Timestamp,
		record.ArchivedAt,
	); err != nil {
		_ = tx.Rollback()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入归档记录失败")
	}

	const done = `UPDATE archive_jobs SET status = ?, last_error = '', error_code = '', updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, done, string(StatusSucceeded), now, id); err != nil {
		_ = tx.Rollback()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务成功失败")
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return nil
}

// MarkFailed 将任务标记为失败，终止性失败会耗尽重试次数。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	const stmt = `UPDATE archive_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ?,
        attempts = CASE WHEN ? THEN GREATEST(attempts, max_retries) ELSE attempts END WHERE id = ?`

	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusFailed),
		lastError,
		string(code),
		s.now().Unix(),
		terminal,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetRecord 查询指定索引的归档记录。
func (s *MySQLStore) GetRecord(ctx context.Context, index uint64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM archive_posts WHERE post_index = ?`, index)
	record, err := scanRecord(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询归档记录失败")
	}
	return record, nil
}

// ListRecords 返回符合过滤条件的归档记录。
func (s *MySQLStore) ListRecords(ctx context.Context, opts ListOptions) ([]*Record, error) {
	opts.applyDefaults()

	query := `SELECT ` + recordColumns + ` FROM archive_posts`
	clause, args := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	if opts.Order == SortByIndexAsc {
		query += " ORDER BY post_index ASC"
	} else {
		query += " ORDER BY post_index DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询归档列表失败")
	}
	defer rows.Close()

	records := make([]*Record, 0, opts.Limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析归档记录失败")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历归档记录失败")
	}
	return records, nil
}

// Stats 返回任务与归档记录的聚合信息。
func (s *MySQLStore) Stats(ctx context.Context) (Stats, error) {
	const jobsQuery = `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS running,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS succeeded,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed
        FROM archive_jobs`

	var stats Stats
	row := s.db.QueryRowContext(ctx, jobsQuery,
		string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed))
	if err := row.Scan(&stats.Jobs.Total, &stats.Jobs.Pending, &stats.Jobs.Running, &stats.Jobs.Succeeded, &stats.Jobs.Failed); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}

	const recordsQuery = `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN restricted = 1 THEN 1 ELSE 0 END), 0) AS restricted,
        COALESCE(SUM(CASE WHEN restricted = 0 AND post_type = 0 THEN 1 ELSE 0 END), 0) AS removed,
        COALESCE(MAX(post_index), -1) AS highest,
        COALESCE(MIN(archived_at), 0) AS oldest,
        COALESCE(MAX(archived_at), 0) AS newest
        FROM archive_posts`

	row = s.db.QueryRowContext(ctx, recordsQuery)
	if err := row.Scan(&stats.Records, &stats.Restricted, &stats.Removed, &stats.HighestIndex, &stats.OldestArchivedAt, &stats.NewestArchivedAt); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询归档统计失败")
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 8)

	if opts.FromIndex != nil {
		conditions = append(conditions, "post_index >= ?")
		args = append(args, *opts.FromIndex)
	}
	if opts.ToIndex != nil {
		conditions = append(conditions, "post_index < ?")
		args = append(args, *opts.ToIndex)
	}
	if opts.Author != "" {
		conditions = append(conditions, "author_address = ?")
		args = append(args, opts.Author)
	}
	if opts.Restricted != nil {
		conditions = append(conditions, "restricted = ?")
		args = append(args, *opts.Restricted)
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(title LIKE ? OR summary LIKE ? OR content LIKE ? OR author LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
