// Package provider turns chain configuration into dialled backends and the
// bulletin contract address to bind on each of them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"UB-Client/internal/bulletin"
	"UB-Client/internal/config"
	"UB-Client/internal/web3"
	"UB-Client/internal/web3/ethereum"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultChainName names the chain used when nothing is configured.
const DefaultChainName = "polygon"

// Target is a dialled chain together with the UB contract deployed on it.
type Target struct {
	Name            string
	Client          *ethereum.Client
	BulletinAddress common.Address
	ETCAddress      common.Address
}

// Registry manages the dialled chains keyed by human readable names.
type Registry struct {
	defaultChain string
	targets      map[string]*Target
}

// NewRegistry loads chain definitions and dials every chain. Fields set in
// cfg (rpc_url, chain_id, bulletin_address) override the selected chain;
// without any definition the public Polygon deployment is used.
func NewRegistry(ctx context.Context, cfg config.ChainConfig) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.DefinitionsPath)
	if err != nil {
		return nil, err
	}

	selected := strings.TrimSpace(cfg.Name)
	if selected == "" {
		selected = defs.Default
	}
	if selected == "" && len(defs.Chains) == 0 {
		selected = DefaultChainName
	}
	if selected == "" {
		selected = firstName(defs.Chains)
	}

	chain, ok := defs.Chains[selected]
	if !ok && len(defs.Chains) > 0 && strings.TrimSpace(cfg.RPCURL) == "" && selected != DefaultChainName {
		return nil, fmt.Errorf("链 %s 未在配置中找到", selected)
	}
	if !ok && selected == DefaultChainName {
		chain = web3.ChainDefinition{
			RPCURL:      bulletin.DefaultRPCURL,
			ChainID:     bulletin.DefaultChainID,
			Description: "Polygon mainnet",
		}
	}
	if rpc := strings.TrimSpace(cfg.RPCURL); rpc != "" {
		chain.RPCURL = rpc
	}
	if cfg.ChainID > 0 {
		chain.ChainID = cfg.ChainID
	}
	if addr := strings.TrimSpace(cfg.BulletinAddress); addr != "" {
		chain.BulletinAddress = addr
	}
	if chain.BulletinAddress == "" && chain.ChainID == bulletin.DefaultChainID {
		chain.BulletinAddress = bulletin.DefaultBulletinAddress.Hex()
	}
	defs.Chains[selected] = chain

	r := &Registry{defaultChain: selected, targets: make(map[string]*Target, len(defs.Chains))}
	for name, def := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(def.Type))
		if chainType != "" && chainType != "evm" {
			r.Close()
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, def.Type)
		}
		client, err := ethereum.Dial(ctx, ethereum.Config{
			Name:    name,
			RPCURL:  def.RPCURL,
			ChainID: def.ChainID,
			Notes:   def.Description,
		})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		target := &Target{Name: name, Client: client}
		if def.BulletinAddress != "" {
			target.BulletinAddress = common.HexToAddress(def.BulletinAddress)
		}
		r.targets[name] = target
	}
	if addr := strings.TrimSpace(cfg.ETCAddress); addr != "" {
		r.targets[selected].ETCAddress = common.HexToAddress(addr)
	}
	return r, nil
}

func firstName(chains map[string]web3.ChainDefinition) string {
	names := make([]string, 0, len(chains))
	for name := range chains {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// Default returns the selected chain.
func (r *Registry) Default() (*Target, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	target, ok := r.targets[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return target, nil
}

// Target returns the chain identified by name.
func (r *Registry) Target(name string) (*Target, bool) {
	if r == nil {
		return nil, false
	}
	target, ok := r.targets[name]
	return target, ok
}

// Chains returns the registered chain names in order.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReaderOptions converts the target addresses into bulletin options.
func (t *Target) ReaderOptions() []bulletin.Option {
	var opts []bulletin.Option
	if t.BulletinAddress != (common.Address{}) {
		opts = append(opts, bulletin.WithBulletinAddress(t.BulletinAddress))
	}
	if t.ETCAddress != (common.Address{}) {
		opts = append(opts, bulletin.WithETCAddress(t.ETCAddress))
	}
	return opts
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, target := range r.targets {
		if target.Client != nil {
			target.Client.Close()
		}
		delete(r.targets, name)
	}
}
