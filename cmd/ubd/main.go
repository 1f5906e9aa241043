package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"UB-Client/internal/api"
	"UB-Client/internal/archive"
	"UB-Client/internal/auth"
	"UB-Client/internal/bulletin"
	"UB-Client/internal/cache"
	"UB-Client/internal/config"
	"UB-Client/internal/observability/alerting"
	"UB-Client/internal/observability/metrics"
	"UB-Client/internal/wallet"
	"UB-Client/internal/web3/provider"
	"UB-Client/pkg/logger"
)

// main 是 ubd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ubd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, path, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if path == "" {
		logger.L().Warn("未找到配置文件，使用默认配置", slog.String("default", config.DefaultPath))
	}

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Chain)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	target, err := chainRegistry.Default()
	if err != nil {
		return err
	}

	aliasCache, closeCache, err := createAliasCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	readerOpts := target.ReaderOptions()
	if aliasCache != nil {
		readerOpts = append(readerOpts, bulletin.WithAliasCache(aliasCache))
	}
	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Chain.TimeoutSeconds)*time.Second)
	reader, err := bulletin.NewReader(dialCtx, target.Client, readerOpts...)
	cancel()
	if err != nil {
		return err
	}

	clientOpts := []bulletin.ClientOption{bulletin.WithScrypt(cfg.Wallet.Scrypt())}
	account, err := cfg.Wallet.Source().Load()
	switch {
	case err == nil:
		clientOpts = append(clientOpts, bulletin.WithAccount(account))
		logger.L().Info("已加载签名账户", slog.String("address", account.Address().Hex()))
	case errors.Is(err, wallet.ErrNoAccount):
		logger.L().Info("未配置签名账户，写操作将被拒绝")
	default:
		return err
	}
	client := bulletin.NewClient(reader, clientOpts...)

	authService, err := auth.NewService(cfg.Auth)
	if err != nil {
		return err
	}

	serverOpts := []api.Option{
		api.WithAuth(authService),
		api.WithNetwork(target.Client),
		api.WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second),
	}

	if cfg.Archive.Enabled {
		service, processor, err := createArchive(ctx, cfg.Archive, client)
		if err != nil {
			return err
		}
		defer func() {
			if err := service.Close(); err != nil {
				logger.L().Error("关闭归档服务失败", slog.Any("error", err))
			}
		}()

		processorCtx, processorCancel := context.WithCancel(ctx)
		defer processorCancel()
		go func() {
			if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("归档处理器异常退出", slog.Any("error", err))
			}
		}()
		serverOpts = append(serverOpts, api.WithArchive(service))
	}

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, client, serverOpts...)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createAliasCache(ctx context.Context, cfg config.CacheConfig) (bulletin.AliasCache, func(), error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	switch cfg.Driver {
	case "", "none":
		return nil, func() {}, nil
	case "memory":
		return cache.NewMemory(ttl), func() {}, nil
	case "redis":
		c, err := cache.NewRedis(ctx, cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Key,
			TTL:      ttl,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的缓存驱动: %s", cfg.Driver)
	}
}

// createArchive 以 client 抓取帖子，配置了账户时按该账户的订阅权限读取。
func createArchive(ctx context.Context, cfg config.ArchiveConfig, client *bulletin.Client) (*archive.Service, *archive.Processor, error) {
	var store archive.Store
	switch cfg.Store.Driver {
	case "", "memory":
		store = archive.NewMemoryStore()
	case "mysql":
		s, err := archive.NewMySQLStore(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		store = s
	default:
		return nil, nil, fmt.Errorf("未知的归档存储驱动: %s", cfg.Store.Driver)
	}

	var queue archive.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		queue = archive.NewMemoryQueue(cfg.Queue.Size)
	case "redis":
		q, err := archive.NewRedisQueue(ctx, archive.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Key,
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		queue = q
	case "rabbitmq":
		q, err := archive.NewRabbitMQQueue(archive.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		queue = q
	default:
		_ = store.Close()
		return nil, nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}

	service := archive.NewService(store, queue,
		archive.WithPostCounter(client),
		archive.WithMaxRetries(cfg.MaxRetries),
	)
	processorOpts := []archive.ProcessorOption{
		archive.WithWorkerCount(cfg.Workers),
		archive.WithProcessorLogger(logger.Named("archive")),
		archive.WithRetryDelay(time.Duration(cfg.RetryDelayMS) * time.Millisecond),
	}
	if dispatcher := createAlerts(cfg.Alerts); dispatcher.Len() > 0 {
		processorOpts = append(processorOpts, archive.WithAlertDispatcher(dispatcher))
	}
	processor := archive.NewProcessor(client, store, queue, queue, processorOpts...)
	return service, processor, nil
}

func createAlerts(cfg config.AlertsConfig) *alerting.FanoutDispatcher {
	var notifiers []alerting.Notifier
	if cfg.Audit {
		notifiers = append(notifiers, alerting.AuditNotifier{})
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhook(cfg.WebhookURL, time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	return alerting.NewFanout(notifiers...)
}
