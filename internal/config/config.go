package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"UB-Client/internal/auth"
	"UB-Client/internal/wallet"
	"UB-Client/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// EnvConfigPath 指向配置文件的环境变量。
	EnvConfigPath = "UB_CONFIG"
	// DefaultPath 为未设置环境变量时使用的配置文件。
	DefaultPath = "configs/ubd.json"
)

// Config 描述了 ubd 与 ub 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Chain   ChainConfig   `json:"chain"`
	Wallet  WalletConfig  `json:"wallet"`
	Cache   CacheConfig   `json:"cache"`
	Archive ArchiveConfig `json:"archive"`
	Auth    auth.Config   `json:"auth"`
	Log     logger.Config `json:"log"`
	Metrics MetricsConfig `json:"metrics"`
	Runtime RuntimeConfig `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address                string `json:"address"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds"`
}

// ChainConfig 描述要连接的链与合约地址。
type ChainConfig struct {
	// Name 选择 chains.yaml 中的链，留空使用其 default。
	Name            string `json:"name"`
	DefinitionsPath string `json:"definitions_path"`
	RPCURL          string `json:"rpc_url"`
	ChainID         int64  `json:"chain_id"`
	BulletinAddress string `json:"bulletin_address"`
	// ETCAddress 非空时跳过 getETC 查询。
	ETCAddress     string `json:"etc_address"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// WalletConfig 描述本地签名账户的来源，口令只通过环境变量传入。
type WalletConfig struct {
	KeystorePath  string `json:"keystore_path"`
	PasswordEnv   string `json:"password_env"`
	PrivateKeyEnv string `json:"private_key_env"`
	LightScrypt   bool   `json:"light_scrypt"`
}

// Password 读取 PasswordEnv 指向的环境变量。
func (w WalletConfig) Password() string {
	if w.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(w.PasswordEnv)
}

// PrivateKey 读取 PrivateKeyEnv 指向的环境变量。
func (w WalletConfig) PrivateKey() string {
	if w.PrivateKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(w.PrivateKeyEnv))
}

// CacheConfig 控制作者别名缓存：none、memory 或 redis。
type CacheConfig struct {
	Driver     string      `json:"driver"`
	TTLSeconds int         `json:"ttl_seconds"`
	Redis      RedisConfig `json:"redis"`
}

// RedisConfig 为缓存与队列共用的 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
}

// ArchiveConfig 描述归档任务的存储、队列与工作协程。
type ArchiveConfig struct {
	Enabled    bool `json:"enabled"`
	Workers    int  `json:"workers"`
	MaxRetries int  `json:"max_retries"`
	// RetryDelayMS 为失败任务重新入队前的等待毫秒数。
	RetryDelayMS int          `json:"retry_delay_ms"`
	Store        StoreConfig  `json:"store"`
	Queue        QueueConfig  `json:"queue"`
	Alerts       AlertsConfig `json:"alerts"`
}

// AlertsConfig 控制任务终态失败时的告警渠道。
type AlertsConfig struct {
	Audit          bool   `json:"audit"`
	WebhookURL     string `json:"webhook_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// StoreConfig 选择归档存储：memory 或 mysql。
type StoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 选择任务队列：memory、redis 或 rabbitmq。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Size     int            `json:"size"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// MetricsConfig 为空时 /metrics 只挂在 API 路由上。
type MetricsConfig struct {
	Address string `json:"address"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Default 返回仅包含默认值的配置，路径相对于当前目录。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(content, filepath.Dir(path))
}

// Parse 解析 JSON 配置，相对路径以 baseDir 为基准。
func Parse(content []byte, baseDir string) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv 读取 UB_CONFIG 指定的文件；未设置且默认文件不存在时返回默认配置。
func LoadFromEnv() (*Config, string, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		cfg, err := Load(path)
		return cfg, path, err
	}
	if _, err := os.Stat(DefaultPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), "", nil
		}
		return nil, "", fmt.Errorf("检查默认配置失败: %w", err)
	}
	cfg, err := Load(DefaultPath)
	return cfg, DefaultPath, err
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}

	if c.Chain.TimeoutSeconds <= 0 {
		c.Chain.TimeoutSeconds = 30
	}
	c.Chain.DefinitionsPath = resolve(baseDir, c.Chain.DefinitionsPath)

	if c.Wallet.PasswordEnv == "" {
		c.Wallet.PasswordEnv = "UB_WALLET_PASSWORD"
	}
	c.Wallet.KeystorePath = resolve(baseDir, c.Wallet.KeystorePath)

	if c.Cache.Driver == "" {
		c.Cache.Driver = "none"
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 600
	}
	if c.Cache.Redis.Key == "" {
		c.Cache.Redis.Key = "ub:alias:"
	}

	if c.Archive.Workers <= 0 {
		c.Archive.Workers = 4
	}
	if c.Archive.MaxRetries <= 0 {
		c.Archive.MaxRetries = 3
	}
	if c.Archive.Store.Driver == "" {
		c.Archive.Store.Driver = "memory"
	}
	if c.Archive.Queue.Driver == "" {
		c.Archive.Queue.Driver = "memory"
	}
	if c.Archive.Queue.Size <= 0 {
		c.Archive.Queue.Size = 1024
	}
	if c.Archive.Queue.Redis.Key == "" {
		c.Archive.Queue.Redis.Key = "ub:archive:jobs"
	}
	if c.Archive.RetryDelayMS <= 0 {
		c.Archive.RetryDelayMS = 500
	}
	if c.Archive.Alerts.TimeoutSeconds <= 0 {
		c.Archive.Alerts.TimeoutSeconds = 10
	}
	if c.Archive.Queue.RabbitMQ.Queue == "" {
		c.Archive.Queue.RabbitMQ.Queue = "ub.archive.jobs"
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = auth.ModeDisabled
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i, path := range c.Log.OutputPaths {
		if path != "stdout" && path != "stderr" {
			c.Log.OutputPaths[i] = resolve(baseDir, path)
		}
	}
	if c.Log.Audit.Enabled && c.Log.Audit.Path == "" {
		c.Log.Audit.Path = filepath.Join("logs", "audit.log")
	}
	c.Log.Audit.Path = resolve(baseDir, c.Log.Audit.Path)

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolve(baseDir, c.Runtime.DataDir)
	}
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Validate 检查驱动名称与地址格式。
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Driver {
	case "none", "memory":
	case "redis":
		if c.Cache.Redis.Address == "" {
			errs = append(errs, errors.New("cache.redis.address 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的缓存驱动 %q", c.Cache.Driver))
	}
	switch c.Archive.Store.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Archive.Store.DSN) == "" {
			errs = append(errs, errors.New("archive.store.dsn 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的归档存储驱动 %q", c.Archive.Store.Driver))
	}
	switch c.Archive.Queue.Driver {
	case "memory":
	case "redis":
		if c.Archive.Queue.Redis.Address == "" {
			errs = append(errs, errors.New("archive.queue.redis.address 不能为空"))
		}
	case "rabbitmq":
		if c.Archive.Queue.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("archive.queue.rabbitmq.url 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的队列驱动 %q", c.Archive.Queue.Driver))
	}
	for name, value := range map[string]string{
		"chain.bulletin_address": c.Chain.BulletinAddress,
		"chain.etc_address":      c.Chain.ETCAddress,
	} {
		if value != "" && !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s 不是合法地址: %q", name, value))
		}
	}
	return errors.Join(errs...)
}

// Source 将钱包配置转换为账户来源。
func (w WalletConfig) Source() wallet.Source {
	return wallet.Source{
		KeystorePath: w.KeystorePath,
		Password:     w.Password(),
		PrivateKey:   w.PrivateKey(),
	}
}

// Scrypt 返回加密 keystore 时使用的参数。
func (w WalletConfig) Scrypt() wallet.ScryptParams {
	if w.LightScrypt {
		return wallet.LightScrypt
	}
	return wallet.StandardScrypt
}
