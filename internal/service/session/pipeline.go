// Package session runs one signing request through the pipeline: open, prepare,
// preview, confirm (sign and broadcast), fee bump, cancel and close.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-pipeline/internal/model"
	"wallet-pipeline/internal/network"
	"wallet-pipeline/internal/node"
	"wallet-pipeline/internal/origin"
	"wallet-pipeline/internal/service/broadcast"
	"wallet-pipeline/internal/service/builder"
	"wallet-pipeline/internal/service/fee"
	"wallet-pipeline/internal/service/nonce"
	"wallet-pipeline/internal/service/postcond"
	"wallet-pipeline/internal/service/request"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/keystore"
	"wallet-pipeline/pkg/logger"
	"wallet-pipeline/pkg/monitor"
	"wallet-pipeline/pkg/utils/lock"
)

// GuardKey 全局只允许一个签名会话
const GuardKey = "wallet:signing-session"

const DefaultLockTTL = 10 * time.Minute

// 预取重试默认值，FetchRetries 为负数时不重试
const (
	DefaultFetchRetries = 2
	DefaultRetryBase    = 250 * time.Millisecond
)

// KeyProvider exposes the unlocked account.
type KeyProvider interface {
	ActiveAccount() (*keystore.Account, error)
	IsUnlocked() bool
}

// NonceSource is the read side of the nonce reconciler.
type NonceSource interface {
	NextNonce(ctx context.Context, networkURL, address string) (nonce.Result, error)
}

type Options struct {
	Registry    network.Registry
	Nodes       *node.Pool
	Nonces      NonceSource
	Fees        *fee.Estimator
	Keys        KeyProvider
	Coordinator *broadcast.Coordinator
	Guard       lock.DistributedLock
	LockTTL     time.Duration
	Journal     Journal

	// FetchRetries 预取失败 (StateUnavailable) 时自动重试的次数，0 使用默认值
	FetchRetries int
	RetryBase    time.Duration
}

type Pipeline struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewPipeline(opts Options) *Pipeline {
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Guard == nil {
		opts.Guard = lock.NewLocalLock()
	}
	if opts.Journal == nil {
		opts.Journal = NewMemoryJournal()
	}
	switch {
	case opts.FetchRetries == 0:
		opts.FetchRetries = DefaultFetchRetries
	case opts.FetchRetries < 0:
		opts.FetchRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultRetryBase
	}
	return &Pipeline{
		opts:     opts,
		log:      logger.For(logger.ComponentSession),
		sessions: make(map[string]*Session),
	}
}

// Open starts a session for rawToken. Only one session may be open at a time;
// a second Open fails with ErrSessionBusy. Validation errors are returned
// before any node request is made.
func (p *Pipeline) Open(ctx context.Context, rawToken string) (*Session, error) {
	ok, err := p.opts.Guard.Acquire(ctx, GuardKey, p.opts.LockTTL)
	if err != nil {
		return nil, errno.ErrSessionBusy.Wrap(err)
	}
	if !ok {
		return nil, errno.ErrSessionBusy
	}

	s, err := p.open(ctx, rawToken)
	if err != nil {
		p.releaseGuard(ctx)
		return nil, err
	}

	p.mu.Lock()
	p.sessions[s.id] = s
	p.mu.Unlock()
	monitor.ActiveSessions.Inc()

	s.journal(ctx, model.StageOpened, nil)
	s.log.Info("session opened", zap.String("type", string(s.req.Details.TxType())), zap.Bool("authorized", s.req.Authorized))
	return s, nil
}

func (p *Pipeline) open(ctx context.Context, rawToken string) (*Session, error) {
	req, err := request.Parse(rawToken)
	if err != nil {
		return nil, err
	}
	net, err := network.Resolve(p.opts.Registry, req.Network)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.NewString(),
		pipeline: p,
		req:      req,
		net:      net,
	}

	if p.opts.Keys != nil && p.opts.Keys.IsUnlocked() {
		if acct, err := p.opts.Keys.ActiveAccount(); err == nil {
			s.account = acct
			s.address = acct.Address(net.TransactionVersion())
		}
	}

	s.postConditions, err = postcond.Resolve(req.PostConditions, req.StxAddress, s.address)
	if err != nil {
		return nil, err
	}
	if s.account != nil {
		// 先用 nonce 0 试构建一次，校验错误在请求节点之前返回
		if _, err := builder.Build(builder.BuildInput{
			Network:           net,
			PublicKey:         s.account.PublicKey(),
			Sponsored:         req.Sponsored,
			PostConditions:    s.postConditions,
			PostConditionMode: req.PostConditionMode,
			Details:           req.Details,
		}); err != nil {
			return nil, err
		}
	}

	s.log = p.log.With(logger.SessionID(s.id), logger.RequestKey(origin.Key(rawToken)), logger.Network(net.Name))
	return s, nil
}

// Get returns an open session by id.
func (p *Pipeline) Get(id string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	if !ok {
		return nil, errno.ErrNotFound.WithMessage("session %s not found", id)
	}
	return s, nil
}

// Journal returns the recorded transitions of a session.
func (p *Pipeline) Journal(ctx context.Context, id string) ([]model.SessionEvent, error) {
	events, err := p.opts.Journal.List(ctx, id)
	if err != nil {
		return nil, errno.ErrDatabase.Wrap(err)
	}
	return events, nil
}

func (p *Pipeline) remove(ctx context.Context, id string) {
	p.mu.Lock()
	_, ok := p.sessions[id]
	delete(p.sessions, id)
	p.mu.Unlock()
	if ok {
		monitor.ActiveSessions.Dec()
		p.releaseGuard(ctx)
	}
}

func (p *Pipeline) releaseGuard(ctx context.Context) {
	if err := p.opts.Guard.Release(context.WithoutCancel(ctx), GuardKey); err != nil {
		p.log.Warn("release session guard", zap.Error(err))
	}
}
