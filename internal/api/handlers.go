package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"UB-Client/internal/archive"
	"UB-Client/internal/bulletin"
	xerrors "UB-Client/internal/errors"
	"UB-Client/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

// StatusResponse 汇总合约与账户状态。
type StatusResponse struct {
	Connected         bool          `json:"connected"`
	BulletinAddress   string        `json:"bulletin_address"`
	ETCAddress        string        `json:"etc_address,omitempty"`
	Account           string        `json:"account,omitempty"`
	TotalPosts        uint64        `json:"total_posts"`
	UserStatus        string        `json:"user_status"`
	DocumentationURL  string        `json:"documentation_url"`
	UIPackageURL      string        `json:"ui_package_url"`
	ManagerAlias      string        `json:"manager_alias,omitempty"`
	SubscriptionPrice string        `json:"subscription_price,omitempty"`
	Network           *web3.Network `json:"network,omitempty"`
}

// PostResponse 在帖子之外附带可读的类型描述。
// AuthorAddress 覆盖内嵌字段，与归档记录一样输出 EIP-55 校验和形式。
type PostResponse struct {
	*bulletin.Post
	AuthorAddress string `json:"author_address"`
	TypeLabel     string `json:"type_label"`
}

// FeedbackRequest 为提交反馈的请求体。
type FeedbackRequest struct {
	Message string `json:"message"`
}

// SubscribeRequest 为订阅的请求体。
type SubscribeRequest struct {
	Periods uint64 `json:"periods"`
	Wait    bool   `json:"wait"`
}

// TransactionResponse 描述已广播的交易。
type TransactionResponse struct {
	TxHash      string `json:"tx_hash"`
	Mined       bool   `json:"mined"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// SyncRequest 指定需要归档的索引区间 [from, to)，to 为 0 表示到最新。
type SyncRequest struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// SyncResponse 返回创建的任务。
type SyncResponse struct {
	Jobs []*archive.Job `json:"jobs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{
		Connected:       s.client.Connected(),
		BulletinAddress: s.client.BulletinAddress().Hex(),
	}
	if account := s.client.Account(); account != nil {
		resp.Account = account.Address().Hex()
	}

	var err error
	if resp.TotalPosts, err = s.client.TotalPosts(ctx); err != nil {
		writeError(w, err)
		return
	}
	if resp.UserStatus, err = s.client.UserStatus(ctx); err != nil {
		writeError(w, err)
		return
	}
	if resp.DocumentationURL, err = s.client.DocumentationURL(ctx); err != nil {
		writeError(w, err)
		return
	}
	if resp.UIPackageURL, err = s.client.UIPackageURL(ctx); err != nil {
		writeError(w, err)
		return
	}

	if resp.Connected {
		resp.ETCAddress = s.client.ETCAddress().Hex()
		if resp.ManagerAlias, err = s.client.ManagerAlias(ctx); err != nil {
			writeError(w, err)
			return
		}
		price, err := s.client.SubscriptionPrice(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.SubscriptionPrice = price.String()
	}

	if s.network != nil {
		if snap, err := s.network.Snapshot(ctx); err == nil {
			resp.Network = &snap
		} else {
			s.log.Warn("获取链信息失败", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	post, err := s.client.PostAtIndex(r.Context(), index)
	if err != nil {
		writeError(w, err)
		return
	}
	if post == nil {
		writeProblem(w, http.StatusForbidden, CodeSubscriptionRequired, bulletin.SubscriptionRequiredReason)
		return
	}
	writeJSON(w, http.StatusOK, PostResponse{Post: post, AuthorAddress: post.AuthorAddress.Hex(), TypeLabel: post.Type.String()})
}

func (s *Server) handleAuthorAlias(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	alias, err := s.client.AuthorAlias(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address.Hex(), "alias": alias})
}

func (s *Server) handleVerifySubscription(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	subscribed, err := s.client.VerifySubscription(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address.Hex(), "subscribed": subscribed})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "请求体解析失败")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeProblem(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "message 不能为空")
		return
	}
	tx, err := s.client.SubmitFeedback(r.Context(), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TransactionResponse{TxHash: tx.Hash().Hex()})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "请求体解析失败")
		return
	}
	session, err := s.client.Session()
	if err != nil {
		writeError(w, err)
		return
	}
	tx, err := session.Subscribe(r.Context(), req.Periods)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := TransactionResponse{TxHash: tx.Hash().Hex()}
	if !req.Wait {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	receipt, err := session.WaitMined(r.Context(), tx)
	if err != nil {
		writeError(w, err)
		return
	}
	resp.Mined = true
	if receipt.BlockNumber != nil {
		resp.BlockNumber = receipt.BlockNumber.Uint64()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "请求体解析失败")
		return
	}
	jobs, err := s.archive.Sync(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SyncResponse{Jobs: jobs})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeProblem(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "缺少任务 ID")
		return
	}
	job, err := s.archive.Job(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleArchivedPost(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	record, err := s.archive.Post(r.Context(), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleArchivedPosts(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.archive.Posts(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": records})
}

func (s *Server) handleArchiveStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.archive.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func indexParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "index 必须为非负整数")
		return 0, false
	}
	return index, true
}

func addressParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeProblem(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "address 不是合法的以太坊地址")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// parseListOptions 将查询参数转换为归档过滤条件。
func parseListOptions(r *http.Request) ([]archive.ListOption, error) {
	query := r.URL.Query()
	var opts []archive.ListOption
	invalid := func(name string) error {
		return xerrors.New(xerrors.CodeInvalidArgument, name+" 参数不合法")
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, invalid("limit")
		}
		opts = append(opts, archive.WithLimit(limit))
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, invalid("offset")
		}
		opts = append(opts, archive.WithOffset(offset))
	}
	var from, to uint64
	if raw := query.Get("from"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, invalid("from")
		}
		from = v
	}
	if raw := query.Get("to"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, invalid("to")
		}
		to = v
	}
	if from > 0 || to > 0 {
		opts = append(opts, archive.WithIndexRange(from, to))
	}
	if raw := query.Get("author"); raw != "" {
		if !common.IsHexAddress(raw) {
			return nil, invalid("author")
		}
		opts = append(opts, archive.WithAuthor(raw))
	}
	if raw := query.Get("restricted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, invalid("restricted")
		}
		opts = append(opts, archive.WithRestricted(v))
	}
	switch strings.ToLower(query.Get("order")) {
	case "", "desc":
	case "asc":
		opts = append(opts, archive.WithSortOrder(archive.SortByIndexAsc))
	default:
		return nil, invalid("order")
	}
	if q := strings.TrimSpace(query.Get("q")); q != "" {
		opts = append(opts, archive.WithQuery(q))
	}
	return opts, nil
}
