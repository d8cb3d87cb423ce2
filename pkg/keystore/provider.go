package keystore

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"

	"wallet-pipeline/pkg/c32"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/wire"
)

// Account 是解锁后的签名账户，私钥只在内存中存在
type Account struct {
	privateKey *btcec.PrivateKey
}

func NewAccount(privateKey *btcec.PrivateKey) *Account {
	return &Account{privateKey: privateKey}
}

func (a *Account) PrivateKey() *btcec.PrivateKey { return a.privateKey }

// PublicKey 返回压缩公钥 (33 bytes)
func (a *Account) PublicKey() []byte {
	return a.privateKey.PubKey().SerializeCompressed()
}

// Address 返回该账户在指定网络上的单签地址
func (a *Account) Address(version wire.TransactionVersion) string {
	addrVersion := c32.MainnetSingleSig
	if version == wire.TransactionVersionTestnet {
		addrVersion = c32.TestnetSingleSig
	}
	addr, _ := c32.PublicKeyAddress(addrVersion, a.PublicKey())
	return addr
}

// Provider 持有 keystore 文件，解锁前不提供任何账户
type Provider struct {
	mu      sync.RWMutex
	keyJSON *EncryptedKeyJSON
	account *Account
}

func NewProvider(keyJSON *EncryptedKeyJSON) *Provider {
	return &Provider{keyJSON: keyJSON}
}

// NewUnlockedProvider 直接包装一个已解锁的账户 (CLI 离线签名、测试)
func NewUnlockedProvider(account *Account) *Provider {
	return &Provider{account: account}
}

func (p *Provider) Unlock(password string) error {
	if p.keyJSON == nil {
		return errno.ErrNoActiveAccount.WithMessage("no keystore loaded")
	}
	raw, err := DecryptPrivateKey(p.keyJSON, password)
	if err != nil {
		return errno.ErrNoActiveAccount.Wrap(err)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)

	p.mu.Lock()
	p.account = NewAccount(priv)
	p.mu.Unlock()
	return nil
}

func (p *Provider) Lock() {
	p.mu.Lock()
	if p.account != nil {
		p.account.privateKey.Zero()
	}
	p.account = nil
	p.mu.Unlock()
}

func (p *Provider) IsUnlocked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.account != nil
}

func (p *Provider) ActiveAccount() (*Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.account == nil {
		return nil, errno.ErrNoActiveAccount
	}
	return p.account, nil
}
