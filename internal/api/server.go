package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"UB-Client/internal/archive"
	"UB-Client/internal/auth"
	"UB-Client/internal/bulletin"
	"UB-Client/internal/observability/metrics"
	"UB-Client/internal/web3"
	"UB-Client/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NetworkInfo 提供链的概要信息，用于状态接口。
type NetworkInfo interface {
	Snapshot(ctx context.Context) (web3.Network, error)
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr            string
	client          *bulletin.Client
	archive         *archive.Service
	network         NetworkInfo
	auth            *auth.Service
	shutdownTimeout time.Duration
	router          chi.Router
	log             *slog.Logger
}

// Option 用于定制 Server。
type Option func(*Server)

// WithArchive 启用归档相关接口。
func WithArchive(svc *archive.Service) Option {
	return func(s *Server) {
		s.archive = svc
	}
}

// WithNetwork 在状态接口中附带链信息。
func WithNetwork(info NetworkInfo) Option {
	return func(s *Server) {
		s.network = info
	}
}

// WithAuth 为会签名交易或写入队列的接口启用令牌认证。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, client *bulletin.Client, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		client:          client,
		shutdownTimeout: 5 * time.Second,
		log:             logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/posts/{index}", s.handlePost)
		r.Get("/authors/{address}/alias", s.handleAuthorAlias)
		r.Get("/subscriptions/{address}", s.handleVerifySubscription)
		r.With(s.guard("subscribe")).Post("/subscriptions", s.handleSubscribe)
		r.With(s.guard("feedback")).Post("/feedback", s.handleFeedback)

		r.Route("/archive", func(r chi.Router) {
			r.Use(s.requireArchive)
			r.With(s.guard("archive_sync")).Post("/sync", s.handleSync)
			r.Get("/jobs/{id}", s.handleJob)
			r.Get("/posts", s.handleArchivedPosts)
			r.Get("/posts/{index}", s.handleArchivedPost)
			r.Get("/stats", s.handleArchiveStats)
		})
	})
	return r
}

// Handler 返回完整的路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// guard 返回写接口使用的认证中间件，未配置认证时直接放行。
func (s *Server) guard(event string) func(http.Handler) http.Handler {
	if s.auth == nil || s.auth.Mode() == auth.ModeDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.auth.Middleware(event)
}

func (s *Server) requireArchive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.archive == nil {
			writeProblem(w, http.StatusServiceUnavailable, "ARCHIVE_DISABLED", "归档功能未启用")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

// observe 记录每个请求的路由模板、状态码与耗时。
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTPRequest(route, r.Method, status, time.Since(start))
	})
}
