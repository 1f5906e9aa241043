package bulletin

import (
	stdErrors "errors"
	"fmt"
	"strings"

	xerrors "UB-Client/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const (
	CodeAccountRequired  xerrors.Code = "ACCOUNT_REQUIRED"
	CodeIndexTooHigh     xerrors.Code = "INDEX_TOO_HIGH"
	CodeNotConnected     xerrors.Code = "NOT_CONNECTED"
	CodeContractReverted xerrors.Code = "CONTRACT_REVERTED"
)

// SubscriptionRequiredReason is the revert reason UB uses when the caller
// lacks a valid subscription for a post.
const SubscriptionRequiredReason = "You need a valid subscription to view this post"

var (
	// ErrAccountRequired is returned by state-changing calls without an account.
	ErrAccountRequired = xerrors.New(CodeAccountRequired, "active account is needed")
	// ErrIndexTooHigh is returned when a post index is at or past totalPosts.
	ErrIndexTooHigh = xerrors.New(CodeIndexTooHigh, "index too high")
	// ErrNotConnected is returned by ETC calls when its address could not be
	// discovered.
	ErrNotConnected = xerrors.New(CodeNotConnected, "ETC contract address is unknown")
)

func init() {
	xerrors.Register(CodeAccountRequired, xerrors.Attributes{
		Message:  "active account is needed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeIndexTooHigh, xerrors.Attributes{
		Message:  "index too high",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeNotConnected, xerrors.Attributes{
		Message:  "ETC contract address is unknown",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeContractReverted, xerrors.Attributes{
		Message:  "contract call reverted",
		Severity: xerrors.SeverityInfo,
	})
}

const revertPrefix = "execution reverted: "

// RevertReason extracts the Error(string) reason of a reverted call. It reads
// the revert payload of JSON-RPC data errors and falls back to the
// "execution reverted: <reason>" message form.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var dataErr gethrpc.DataError
	if stdErrors.As(err, &dataErr) {
		if reason, ok := decodeRevertData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}
	msg := err.Error()
	if idx := strings.Index(msg, revertPrefix); idx >= 0 {
		if reason := strings.TrimSpace(msg[idx+len(revertPrefix):]); reason != "" {
			return reason, true
		}
	}
	return "", false
}

func decodeRevertData(data any) (string, bool) {
	var raw []byte
	switch v := data.(type) {
	case string:
		decoded, err := hexutil.Decode(v)
		if err != nil {
			return "", false
		}
		raw = decoded
	case []byte:
		raw = v
	default:
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}

// IsSubscriptionRequired reports whether err is the UB revert signalling that
// the caller needs a subscription.
func IsSubscriptionRequired(err error) bool {
	reason, ok := RevertReason(err)
	return ok && reason == SubscriptionRequiredReason
}

func wrapCallError(contract, method string, err error) error {
	if reason, ok := RevertReason(err); ok {
		return xerrors.Wrap(CodeContractReverted, err,
			fmt.Sprintf("%s.%s reverted", contract, method),
			xerrors.WithMetadata("reason", reason))
	}
	return xerrors.Wrap(xerrors.CodeChainCallFailure, err, fmt.Sprintf("%s.%s failed", contract, method))
}
