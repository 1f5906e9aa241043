package api

import (
	"encoding/json"
	"net/http"

	"UB-Client/internal/archive"
	"UB-Client/internal/bulletin"
	xerrors "UB-Client/internal/errors"
	"UB-Client/pkg/logger"
)

// CodeSubscriptionRequired 在帖子需要订阅时返回给调用方。
const CodeSubscriptionRequired = "SUBSCRIPTION_REQUIRED"

type problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type errorBody struct {
	Error problem `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: problem{Code: code, Message: message}})
}

// writeError 将错误码映射为 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logger.Named("api").Error("请求处理失败", "code", string(code), "error", err)
	}
	writeJSON(w, status, errorBody{Error: problem{
		Code:      string(code),
		Message:   err.Error(),
		Retryable: xerrors.RetryableError(err),
	}})
}

func statusFor(code xerrors.Code) int {
	switch code {
	case bulletin.CodeAccountRequired:
		return http.StatusUnauthorized
	case bulletin.CodeIndexTooHigh, xerrors.CodeNotFound, archive.CodeJobNotFound, archive.CodeRecordNotFound:
		return http.StatusNotFound
	case xerrors.CodeInvalidArgument, archive.CodeSyncValidation:
		return http.StatusBadRequest
	case bulletin.CodeContractReverted:
		return http.StatusUnprocessableEntity
	case bulletin.CodeNotConnected, xerrors.CodeInitializationFailure, archive.CodeJobPublish, xerrors.CodeQueueFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeChainCallFailure:
		return http.StatusBadGateway
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
