package network

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"wallet-pipeline/pkg/config"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/wire"
)

// Network 一个可用的节点网络
type Network struct {
	Name    string
	URL     string
	ChainID uint32
}

// TransactionVersion 由 chain id 决定: 主网 0x00，其余 0x80
func (n Network) TransactionVersion() wire.TransactionVersion {
	if n.ChainID == wire.ChainIDMainnet {
		return wire.TransactionVersionMainnet
	}
	return wire.TransactionVersionTestnet
}

func (n Network) IsMainnet() bool { return n.ChainID == wire.ChainIDMainnet }

// ExplorerLink builds the explorer URL for a txid on this network.
func (n Network) ExplorerLink(txid string) string {
	chain := "testnet"
	if n.IsMainnet() {
		chain = "mainnet"
	}
	return fmt.Sprintf("https://explorer.stacks.co/txid/0x%s?chain=%s", strings.TrimPrefix(txid, "0x"), chain)
}

// Requested is the network a signing request asks for.
type Requested struct {
	ChainID    uint32
	CoreAPIURL string
}

type Registry interface {
	Active() (Network, error)
	Match(req Requested) (Network, bool)
}

// StaticRegistry 来自配置的网络表，运行期不可编辑
type StaticRegistry struct {
	mu       sync.RWMutex
	active   string
	networks map[string]Network
}

func NewStaticRegistry(active string, networks map[string]Network) *StaticRegistry {
	r := &StaticRegistry{active: active, networks: make(map[string]Network, len(networks))}
	for name, n := range networks {
		n.Name = name
		n.URL = strings.TrimRight(n.URL, "/")
		r.networks[name] = n
	}
	return r
}

// FromConfig builds the registry from the network config section.
func FromConfig(c config.NetworkConfig) *StaticRegistry {
	networks := make(map[string]Network, len(c.Networks))
	for name, entry := range c.Networks {
		networks[name] = Network{URL: entry.URL, ChainID: entry.ChainID}
	}
	return NewStaticRegistry(c.Active, networks)
}

func (r *StaticRegistry) Active() (Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.networks[r.active]
	if !ok {
		return Network{}, errno.ErrNetworkUnresolved.WithMessage("active network %q is not configured", r.active)
	}
	return n, nil
}

// SetActive switches the active network by name.
func (r *StaticRegistry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.networks[name]; !ok {
		return errno.ErrNetworkUnresolved.WithMessage("unknown network %q", name)
	}
	r.active = name
	return nil
}

// Match finds the configured network for a request: exact URL first, then chain id.
// Names are visited in sorted order so the chain-id fallback is deterministic.
func (r *StaticRegistry) Match(req Requested) (Network, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	sort.Strings(names)

	url := strings.TrimRight(req.CoreAPIURL, "/")
	if url != "" {
		for _, name := range names {
			if r.networks[name].URL == url {
				return r.networks[name], true
			}
		}
	}
	for _, name := range names {
		if r.networks[name].ChainID == req.ChainID {
			return r.networks[name], true
		}
	}
	return Network{}, false
}

// Resolve 请求指定网络时优先匹配已配置的网络 (先节点地址，后 chain id)，
// 匹配不到则使用当前激活网络。请求里的节点地址从不直接采用。
func Resolve(r Registry, req *Requested) (Network, error) {
	if req != nil {
		if n, ok := r.Match(*req); ok {
			return n, nil
		}
	}
	return r.Active()
}
