// Package ubclient is a Go client for the ubd REST API.
package ubclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Chain calls behind the API are slow, so it is longer than a typical REST
// timeout.
const DefaultHTTPTimeout = 30 * time.Second

// Client wraps the HTTP interactions with ubd.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Connected         bool     `json:"connected"`
	BulletinAddress   string   `json:"bulletin_address"`
	ETCAddress        string   `json:"etc_address,omitempty"`
	Account           string   `json:"account,omitempty"`
	TotalPosts        uint64   `json:"total_posts"`
	UserStatus        string   `json:"user_status"`
	DocumentationURL  string   `json:"documentation_url"`
	UIPackageURL      string   `json:"ui_package_url"`
	ManagerAlias      string   `json:"manager_alias,omitempty"`
	SubscriptionPrice string   `json:"subscription_price,omitempty"`
	Network           *Network `json:"network,omitempty"`
}

// Network describes the chain ubd is connected to.
type Network struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
}

// Post is a live post.
type Post struct {
	Index         uint64 `json:"index"`
	Type          uint64 `json:"type"`
	TypeLabel     string `json:"type_label"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Content       string `json:"content"`
	Author        string `json:"author"`
	AuthorAddress string `json:"author_address"`
	Timestamp     int64  `json:"timestamp"`
}

// Transaction is the result of a state-changing call.
type Transaction struct {
	TxHash      string `json:"tx_hash"`
	Mined       bool   `json:"mined"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// Job is an archive sync job.
type Job struct {
	ID         string `json:"id"`
	Index      uint64 `json:"index"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// Done reports whether the job will not change anymore.
func (j Job) Done() bool {
	return j.Status == "succeeded" || (j.Status == "failed" && j.Attempts >= j.MaxRetries)
}

// ArchivedPost is a post stored by the archive.
type ArchivedPost struct {
	Index         uint64 `json:"index"`
	Restricted    bool   `json:"restricted"`
	Type          uint64 `json:"type"`
	Title         string `json:"title,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Content       string `json:"content,omitempty"`
	Author        string `json:"author,omitempty"`
	AuthorAddress string `json:"author_address,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	ArchivedAt    int64  `json:"archived_at"`
}

// ArchiveStats mirrors GET /api/v1/archive/stats.
type ArchiveStats struct {
	Jobs struct {
		Total     int `json:"total"`
		Pending   int `json:"pending"`
		Running   int `json:"running"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	} `json:"jobs"`
	Records      int   `json:"records"`
	Restricted   int   `json:"restricted"`
	Removed      int   `json:"removed"`
	HighestIndex int64 `json:"highest_index"`
}

// ListParams filters ArchivedPosts. Zero values are omitted.
type ListParams struct {
	Limit      int
	Offset     int
	From       uint64
	To         uint64
	Author     string
	Restricted *bool
	Ascending  bool
	Query      string
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.From > 0 {
		v.Set("from", strconv.FormatUint(p.From, 10))
	}
	if p.To > 0 {
		v.Set("to", strconv.FormatUint(p.To, 10))
	}
	if p.Author != "" {
		v.Set("author", p.Author)
	}
	if p.Restricted != nil {
		v.Set("restricted", strconv.FormatBool(*p.Restricted))
	}
	if p.Ascending {
		v.Set("order", "asc")
	}
	if p.Query != "" {
		v.Set("q", p.Query)
	}
	return v
}

// APIError represents a non-2xx answer.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("ubd api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ubd api error (%d): %s", e.StatusCode, e.Message)
}

// ErrSubscriptionRequired is returned by Post when the daemon account cannot
// read the post.
var ErrSubscriptionRequired = errors.New("ubclient: subscription required")

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewClient instantiates a client. When httpClient is nil a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Status fetches contract and account status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.get(ctx, "/api/v1/status", nil, &out)
	return out, err
}

// Post fetches a live post.
func (c *Client) Post(ctx context.Context, index uint64) (Post, error) {
	var out Post
	err := c.get(ctx, "/api/v1/posts/"+strconv.FormatUint(index, 10), nil, &out)
	if IsCode(err, "SUBSCRIPTION_REQUIRED") {
		return Post{}, fmt.Errorf("%w: post %d", ErrSubscriptionRequired, index)
	}
	return out, err
}

// AuthorAlias returns the alias of an author address.
func (c *Client) AuthorAlias(ctx context.Context, address string) (string, error) {
	var out struct {
		Alias string `json:"alias"`
	}
	err := c.get(ctx, "/api/v1/authors/"+url.PathEscape(address)+"/alias", nil, &out)
	return out.Alias, err
}

// VerifySubscription reports whether address holds a subscription.
func (c *Client) VerifySubscription(ctx context.Context, address string) (bool, error) {
	var out struct {
		Subscribed bool `json:"subscribed"`
	}
	err := c.get(ctx, "/api/v1/subscriptions/"+url.PathEscape(address), nil, &out)
	return out.Subscribed, err
}

// SubmitFeedback sends feedback signed by the daemon account.
func (c *Client) SubmitFeedback(ctx context.Context, message string) (Transaction, error) {
	var out Transaction
	err := c.post(ctx, "/api/v1/feedback", map[string]string{"message": message}, &out)
	return out, err
}

// Subscribe buys periods for the daemon account, optionally waiting for the
// receipt.
func (c *Client) Subscribe(ctx context.Context, periods uint64, wait bool) (Transaction, error) {
	var out Transaction
	err := c.post(ctx, "/api/v1/subscriptions", map[string]any{"periods": periods, "wait": wait}, &out)
	return out, err
}

// Sync queues archive jobs for [from, to). A zero to means up to the latest
// post.
func (c *Client) Sync(ctx context.Context, from, to uint64) ([]Job, error) {
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	err := c.post(ctx, "/api/v1/archive/sync", map[string]uint64{"from": from, "to": to}, &out)
	return out.Jobs, err
}

// Job fetches an archive job.
func (c *Client) Job(ctx context.Context, id string) (Job, error) {
	var out Job
	err := c.get(ctx, "/api/v1/archive/jobs/"+url.PathEscape(id), nil, &out)
	return out, err
}

// WaitJob polls until the job is done or ctx ends.
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ArchivedPost fetches one archived post.
func (c *Client) ArchivedPost(ctx context.Context, index uint64) (ArchivedPost, error) {
	var out ArchivedPost
	err := c.get(ctx, "/api/v1/archive/posts/"+strconv.FormatUint(index, 10), nil, &out)
	return out, err
}

// ArchivedPosts lists archived posts.
func (c *Client) ArchivedPosts(ctx context.Context, params ListParams) ([]ArchivedPost, error) {
	var out struct {
		Posts []ArchivedPost `json:"posts"`
	}
	err := c.get(ctx, "/api/v1/archive/posts", params.values(), &out)
	return out.Posts, err
}

// ArchiveStats fetches archive counters.
func (c *Client) ArchiveStats(ctx context.Context) (ArchiveStats, error) {
	var out ArchiveStats
	err := c.get(ctx, "/api/v1/archive/stats", nil, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr}); err != nil {
				_ = json.Unmarshal(data, apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
