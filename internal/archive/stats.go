package archive

// JobStats 聚合归档任务状态。
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Stats 聚合了归档的整体情况，常用于仪表盘或健康检查。
type Stats struct {
	Jobs             JobStats `json:"jobs"`
	Records          int      `json:"records"`
	Restricted       int      `json:"restricted"`
	Removed          int      `json:"removed"`
	HighestIndex     int64    `json:"highest_index"`
	OldestArchivedAt int64    `json:"oldest_archived_at,omitempty"`
	NewestArchivedAt int64    `json:"newest_archived_at,omitempty"`
}
