package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	xerrors "UB-Client/internal/errors"
	"UB-Client/pkg/logger"
)

// Mode 表示身份认证的工作模式。
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeToken    Mode = "token"
)

const CodeUnauthenticated xerrors.Code = "UNAUTHENTICATED"

var (
	// ErrMissingToken 表示请求未携带令牌。
	ErrMissingToken = xerrors.New(CodeUnauthenticated, "missing bearer token")
	// ErrInvalidToken 表示令牌不匹配任何已配置的调用方。
	ErrInvalidToken = xerrors.New(CodeUnauthenticated, "invalid bearer token")
)

func init() {
	xerrors.Register(CodeUnauthenticated, xerrors.Attributes{Message: "authentication required", Severity: xerrors.SeverityWarning})
}

// TokenConfig 描述一个调用方。令牌只以 SHA-256 摘要保存，或通过环境变量传入。
type TokenConfig struct {
	Name     string `json:"name"`
	SHA256   string `json:"sha256,omitempty"`
	TokenEnv string `json:"token_env,omitempty"`
}

// Config 为身份认证配置。
type Config struct {
	Mode   Mode          `json:"mode"`
	Tokens []TokenConfig `json:"tokens"`
}

// Subject 是通过认证的调用方。
type Subject struct {
	Name string
}

type credential struct {
	name   string
	digest [sha256.Size]byte
}

// Service 负责校验 Authorization 头。
type Service struct {
	mode        Mode
	credentials []credential
	audit       *slog.Logger
}

// NewService 构造身份认证服务实例。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{mode: mode, audit: logger.Audit()}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeToken:
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}

	for _, tc := range cfg.Tokens {
		name := strings.TrimSpace(tc.Name)
		if name == "" {
			return nil, fmt.Errorf("auth token entry without name")
		}
		var c credential
		c.name = name
		switch {
		case tc.SHA256 != "":
			raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(tc.SHA256), "0x"))
			if err != nil || len(raw) != sha256.Size {
				return nil, fmt.Errorf("token %s: sha256 must be %d hex bytes", name, sha256.Size)
			}
			copy(c.digest[:], raw)
		case tc.TokenEnv != "":
			plain := strings.TrimSpace(os.Getenv(tc.TokenEnv))
			if plain == "" {
				return nil, fmt.Errorf("token %s: environment variable %s is empty", name, tc.TokenEnv)
			}
			c.digest = sha256.Sum256([]byte(plain))
		default:
			return nil, fmt.Errorf("token %s: sha256 or token_env is required", name)
		}
		svc.credentials = append(svc.credentials, c)
	}
	if len(svc.credentials) == 0 {
		return nil, fmt.Errorf("token mode requires at least one token")
	}
	return svc, nil
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Authenticate 校验 "Bearer <token>" 形式的 Authorization 头。
func (s *Service) Authenticate(header string) (*Subject, error) {
	if s == nil || s.mode == ModeDisabled {
		return &Subject{Name: "anonymous"}, nil
	}
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, ErrMissingToken
	}
	digest := sha256.Sum256([]byte(token))
	for _, c := range s.credentials {
		if subtle.ConstantTimeCompare(digest[:], c.digest[:]) == 1 {
			return &Subject{Name: c.name}, nil
		}
	}
	return nil, ErrInvalidToken
}

// HashToken 返回令牌的十六进制 SHA-256 摘要，用于填写配置。
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
