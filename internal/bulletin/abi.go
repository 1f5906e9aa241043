package bulletin

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultRPCURL is the public Polygon endpoint the platform publishes.
	DefaultRPCURL = "https://polygon.llamarpc.com"
	// DefaultChainID is Polygon mainnet.
	DefaultChainID int64 = 137
)

// DefaultBulletinAddress is the UB contract on Polygon.
var DefaultBulletinAddress = common.HexToAddress("0x19250120917529c25EeEb3FAEdE3977e313b4e49")

// Tuple components carry names only so go-ethereum can build a Go struct for
// them; names do not affect the selector.
const bulletinABIJSON = `[
  {"type":"function","name":"getDocumentationURL","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"getETC","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"totalPosts","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getUserStatus","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"postAt","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[
    {"name":"postType","type":"uint256"},
    {"name":"title","type":"string"},
    {"name":"summary","type":"string"},
    {"name":"content","type":"string"},
    {"name":"author","type":"address"},
    {"name":"timestamp","type":"uint256"},
    {"name":"extra","type":"string"}
  ]}]},
  {"type":"function","name":"submitFeedback","stateMutability":"nonpayable","inputs":[{"name":"_fb","type":"string"}],"outputs":[]},
  {"type":"function","name":"getCreatorUIPackageURL","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

const etcABIJSON = `[
  {"type":"function","name":"getManagerAlias","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"getAuthorAlias","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"subscriptionPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"verifySubscription","stateMutability":"view","inputs":[{"name":"subscriber","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"subscribe","stateMutability":"payable","inputs":[{"name":"periodCount","type":"uint256"}],"outputs":[]}
]`

var (
	// BulletinABI is the user-facing ABI of the UB contract.
	BulletinABI = mustParseABI(bulletinABIJSON)
	// ETCABI is the user-facing ABI of the Editor's Token Contract.
	ETCABI = mustParseABI(etcABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("bulletin: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
