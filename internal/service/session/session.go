package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wallet-pipeline/internal/event"
	"wallet-pipeline/internal/model"
	"wallet-pipeline/internal/network"
	"wallet-pipeline/internal/node"
	"wallet-pipeline/internal/origin"
	"wallet-pipeline/internal/service/broadcast"
	"wallet-pipeline/internal/service/builder"
	"wallet-pipeline/internal/service/fee"
	"wallet-pipeline/internal/service/nonce"
	"wallet-pipeline/internal/service/policy"
	"wallet-pipeline/internal/service/request"
	"wallet-pipeline/internal/service/signer"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/keystore"
	"wallet-pipeline/pkg/logger"
	"wallet-pipeline/pkg/wire"
)

type phase int

const (
	phaseOpen phase = iota
	phaseDone       // 已广播成功或已取消，结果已回传
	phaseClosed
)

// Session is one signing request. All methods are safe for concurrent use.
type Session struct {
	id       string
	pipeline *Pipeline
	log      *zap.Logger

	req            *request.SigningRequest
	net            network.Network
	account        *keystore.Account
	address        string
	postConditions []wire.PostCondition

	mu       sync.Mutex
	phase    phase
	nonce    policy.Stage[uint64]
	balance  policy.Stage[decimal.Decimal]
	contract policy.Stage[*node.ContractInterface]
	unsigned *builder.UnsignedTransaction
	fee      *fee.ResolvedFee
	buildErr error
	signed   *signer.SignedTransaction
	result   *broadcast.Result
	inflight *signer.SignedTransaction // 广播超时的交易，节点可能已收到
}

func (s *Session) ID() string                       { return s.id }
func (s *Session) Request() *request.SigningRequest { return s.req }
func (s *Session) Network() network.Network         { return s.net }
func (s *Session) Address() string                  { return s.address }

// Preview is what the user sees before confirming.
type Preview struct {
	SessionID         string                 `json:"session_id"`
	TxType            request.TxType         `json:"tx_type"`
	Network           string                 `json:"network"`
	Address           string                 `json:"address,omitempty"`
	Nonce             *uint64                `json:"nonce,omitempty"`
	Fee               *decimal.Decimal       `json:"fee,omitempty"`
	Sponsored         bool                   `json:"sponsored"`
	HighFeeWarning    bool                   `json:"high_fee_warning"`
	AllowModeWarning  string                 `json:"allow_mode_warning,omitempty"`
	PostConditions    int                    `json:"post_conditions"`
	PostConditionMode wire.PostConditionMode `json:"post_condition_mode"`
	Verdict           policy.Verdict         `json:"verdict"`
	TxID              string                 `json:"tx_id,omitempty"`
	Status            event.TxStatus         `json:"status,omitempty"`
	ExplorerLink      string                 `json:"explorer_link,omitempty"`
}

// Prepare fetches nonce, balance and (for contract calls) the contract
// interface concurrently, then builds the unsigned transaction. A failed
// fetch does not cancel the others; each becomes its own stage. Fetches that
// fail with a retryable error are retried with bounded exponential backoff.
//
// Once signed, the nonce and signature are kept. The exception is a
// transaction the node rejected: it is rebuilt at the freshly reconciled
// nonce, keeping the higher fee, unless an earlier broadcast of the session
// timed out and may still land.
func (s *Session) Prepare(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.account == nil {
		s.setStages(policy.Failed[uint64](errno.ErrNoActiveAccount), policy.Failed[decimal.Decimal](errno.ErrNoActiveAccount), policy.Ready[*node.ContractInterface](nil))
		return errno.ErrNoActiveAccount
	}

	var (
		nonceStage    = policy.Pending[uint64]()
		balanceStage  = policy.Pending[decimal.Decimal]()
		contractStage = policy.Ready[*node.ContractInterface](nil)
		client        = s.pipeline.opts.Nodes.Get(s.net.URL)
	)

	var g errgroup.Group
	g.Go(func() error {
		var res nonce.Result
		err := s.fetch(ctx, "nonce", func() (err error) {
			res, err = s.pipeline.opts.Nonces.NextNonce(ctx, s.net.URL, s.address)
			return err
		})
		nonceStage = policy.FromResult(res.Nonce, err)
		return nil
	})
	g.Go(func() error {
		var bal *node.AddressBalance
		err := s.fetch(ctx, "balance", func() (err error) {
			if bal, err = client.AccountBalance(ctx, s.address); err != nil {
				return errno.ErrBalanceUnavailable.Wrap(err)
			}
			return nil
		})
		if err != nil {
			balanceStage = policy.Failed[decimal.Decimal](err)
			return nil
		}
		balanceStage = policy.Ready(bal.STX.Available())
		return nil
	})
	if cc, ok := s.req.ContractCall(); ok {
		g.Go(func() error {
			var ci *node.ContractInterface
			err := s.fetch(ctx, "contract", func() (err error) {
				ci, err = client.ContractInterface(ctx, cc.ContractAddress, cc.ContractName)
				switch {
				case err == nil, errors.Is(err, node.ErrContractNotFound):
					return err
				default:
					return errno.ErrNodeUnavailable.Wrap(err)
				}
			})
			switch {
			case errors.Is(err, node.ErrContractNotFound):
				contractStage = policy.Ready[*node.ContractInterface](nil)
			case err != nil:
				contractStage = policy.Failed[*node.ContractInterface](err)
			default:
				contractStage = policy.Ready(ci)
			}
			return nil
		})
	}
	_ = g.Wait()

	for name, err := range map[string]error{"nonce": nonceStage.Err, "balance": balanceStage.Err, "contract": contractStage.Err} {
		if err != nil {
			s.log.Warn("prepare fetch failed", zap.String("stage", name), zap.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance, s.contract = balanceStage, contractStage
	renonce := s.rejectedLocked()
	if s.signed != nil && !renonce {
		// 已签名: 保留原 nonce 与签名，只刷新余额和合约
		return nil
	}
	var (
		prevFee      uint64
		prevResolved *fee.ResolvedFee
		prevNonce    uint64
	)
	if s.unsigned != nil && s.fee != nil {
		prevFee, prevResolved, prevNonce = s.unsigned.Fee(), s.fee, s.unsigned.Nonce()
	}
	if renonce {
		// 节点拒绝了上一笔交易，丢弃签名，按新 nonce 重建
		s.signed, s.result = nil, nil
	}
	s.nonce = nonceStage

	if nonceStage.IsReady() {
		s.unsigned, s.fee, s.buildErr = s.build(nonceStage.Value)
		if s.buildErr == nil && prevResolved != nil && prevFee > s.unsigned.Fee() {
			// 已加价的费用不回退
			s.unsigned, s.fee = s.unsigned.WithFee(prevFee), prevResolved
		}
	}
	if renonce && s.unsigned != nil {
		s.log.Info("rebuilding rejected transaction", zap.Uint64("previous_nonce", prevNonce), logger.Nonce(s.unsigned.Nonce()))
	}
	if s.buildErr != nil {
		s.journalLocked(ctx, model.StageFailed, func(ev *model.SessionEvent) { ev.Detail = s.buildErr.Error() })
		return s.buildErr
	}
	s.journalLocked(ctx, model.StagePrepared, nil)
	return nil
}

// rejectedLocked reports whether the signed transaction was rejected by the
// node and no broadcast of this session is still unresolved.
func (s *Session) rejectedLocked() bool {
	return s.signed != nil && s.inflight == nil &&
		s.result != nil && s.result.Status == event.TxStatusFailed
}

// fetch runs op, retrying StateUnavailable failures with exponential backoff
// up to the pipeline's FetchRetries. Other errors return at once.
func (s *Session) fetch(ctx context.Context, stage string, op func() error) error {
	opts := s.pipeline.opts
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.RetryBase
	eb.MaxInterval = 8 * opts.RetryBase
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(opts.FetchRetries)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errno.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		s.log.Debug("prepare fetch retry", zap.String("stage", stage), zap.Duration("wait", wait), zap.Error(err))
	})
}

// build assembles the transaction at fee zero to measure it, then applies the
// resolved fee.
func (s *Session) build(nonceValue uint64) (*builder.UnsignedTransaction, *fee.ResolvedFee, error) {
	u, err := builder.Build(builder.BuildInput{
		Network:           s.net,
		PublicKey:         s.account.PublicKey(),
		Nonce:             nonceValue,
		Sponsored:         s.req.Sponsored,
		PostConditions:    s.postConditions,
		PostConditionMode: s.req.PostConditionMode,
		Details:           s.req.Details,
	})
	if err != nil {
		return nil, nil, err
	}
	length, err := u.ByteLength()
	if err != nil {
		return nil, nil, err
	}
	estimator := s.pipeline.opts.Fees
	resolved, err := estimator.Resolve(estimator.DefaultFee(length), s.req.CustomFee, s.req.Sponsored)
	if err != nil {
		return nil, nil, err
	}
	micro, err := resolved.Micro()
	if err != nil {
		return nil, nil, err
	}
	return u.WithFee(micro), &resolved, nil
}

func (s *Session) setStages(n policy.Stage[uint64], b policy.Stage[decimal.Decimal], c policy.Stage[*node.ContractInterface]) {
	s.mu.Lock()
	s.nonce, s.balance, s.contract = n, b, c
	s.mu.Unlock()
}

// Verdict evaluates the confirm gate against the current stages.
func (s *Session) Verdict() policy.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdictLocked()
}

func (s *Session) verdictLocked() policy.Verdict {
	v := policy.Evaluate(policy.Input{
		Request:    s.req,
		HasAccount: s.account != nil,
		Balance:    s.balance,
		Nonce:      s.nonce,
		Contract:   s.contract,
		Fee:        s.fee,
	})
	if v.CanConfirm && s.unsigned == nil {
		v.CanConfirm = false
	}
	return v
}

func (s *Session) Preview() *Preview {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Preview{
		SessionID:         s.id,
		TxType:            s.req.Details.TxType(),
		Network:           s.net.Name,
		Address:           s.address,
		Sponsored:         s.req.Sponsored,
		PostConditions:    len(s.postConditions),
		PostConditionMode: s.req.PostConditionMode,
		Verdict:           s.verdictLocked(),
	}
	if s.unsigned != nil {
		n := s.unsigned.Nonce()
		p.Nonce = &n
		if s.unsigned.AllowModeWarning {
			p.AllowModeWarning = builder.AllowModeWarningText
		}
	}
	if s.fee != nil {
		amount := s.fee.Amount
		p.Fee = &amount
		p.HighFeeWarning = s.fee.HighFeeWarning
	}
	if s.result != nil {
		p.TxID = s.result.TxID
		p.Status = s.result.Status
		p.ExplorerLink = s.result.ExplorerLink
	}
	return p
}

// Confirm signs (unless a signature for the current snapshot already exists)
// and broadcasts. After an unknown result the same bytes are resubmitted; a
// successful broadcast is never repeated.
func (s *Session) Confirm(ctx context.Context) (*broadcast.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case phaseDone:
		if s.result != nil && s.result.Status == event.TxStatusSuccess {
			return s.result, nil
		}
		return nil, errno.ErrSessionClosed
	case phaseClosed:
		return nil, errno.ErrSessionClosed
	}
	if s.account == nil {
		return nil, errno.ErrNoActiveAccount
	}
	if err := s.verdictLocked().Err(); err != nil {
		return nil, err
	}

	if s.signed == nil {
		signed, err := signer.Sign(s.unsigned, s.account.PrivateKey())
		if err != nil {
			s.journalLocked(ctx, model.StageFailed, func(ev *model.SessionEvent) { ev.Detail = err.Error() })
			return nil, err
		}
		s.signed = signed
		s.journalLocked(ctx, model.StageSigned, nil)
	}

	res, err := s.pipeline.opts.Coordinator.Broadcast(ctx, broadcast.Submission{
		RequestToken: s.req.Token,
		Network:      s.net,
		Address:      s.address,
		Signed:       s.signed,
	})
	if res != nil {
		s.result = res
		s.journalLocked(ctx, model.StageBroadcast, func(ev *model.SessionEvent) {
			ev.Status = string(res.Status)
			if len(res.NodeError) > 0 {
				ev.Detail = string(res.NodeError)
			} else if err != nil {
				ev.Detail = err.Error()
			}
		})
		switch res.Status {
		case event.TxStatusSuccess:
			s.phase, s.inflight = phaseDone, nil
		case event.TxStatusUnknown:
			s.inflight = s.signed
		}
	}
	return res, err
}

// BumpFee re-prices the transaction at the same nonce with an escalated rate.
// The previous signature is discarded; Confirm signs the new snapshot.
func (s *Session) BumpFee(ctx context.Context, esc fee.Escalation) (*fee.ResolvedFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != phaseOpen {
		return nil, errno.ErrSessionClosed
	}
	if s.unsigned == nil {
		return nil, errno.ErrStagePending
	}
	if s.req.Sponsored {
		return nil, errno.ErrInvalidRequest.WithMessage("sponsored transactions carry no origin fee")
	}

	length, err := s.unsigned.ByteLength()
	if err != nil {
		return nil, err
	}
	bumped, err := s.pipeline.opts.Fees.Bump(s.unsigned.Fee(), length, esc)
	if err != nil {
		return nil, err
	}
	micro, err := bumped.Micro()
	if err != nil {
		return nil, err
	}

	prev := s.unsigned.Fee()
	s.unsigned = s.unsigned.WithFee(micro)
	s.fee = &bumped
	s.signed = nil
	s.journalLocked(ctx, model.StageFeeBumped, func(ev *model.SessionEvent) {
		ev.Detail = fmt.Sprintf("previous fee %d", prev)
	})
	s.log.Info("fee bumped", zap.Uint64("from", prev), zap.Uint64("to", micro))
	return &bumped, nil
}

// Cancel relays the cancel message and closes the session. When a broadcast
// of this session timed out, the unresolved transaction is relayed instead.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != phaseOpen {
		s.mu.Unlock()
		return errno.ErrSessionClosed
	}
	err := s.relayClosingLocked(ctx)
	s.phase = phaseDone
	s.journalLocked(ctx, model.StageCancelled, nil)
	s.mu.Unlock()

	s.Close(ctx)
	return err
}

// Close ends the session and frees the guard. Closing a session that never
// relayed an outcome relays a cancel, the same as closing the window, or the
// unresolved transaction if a broadcast timed out. Close is idempotent.
func (s *Session) Close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	if s.phase == phaseClosed {
		s.mu.Unlock()
		return
	}
	if s.phase == phaseOpen {
		if err := s.relayClosingLocked(ctx); err != nil {
			s.log.Warn("relay outcome on close", zap.Error(err))
		}
	}
	s.phase = phaseClosed
	s.journalLocked(ctx, model.StageClosed, nil)
	s.mu.Unlock()

	s.pipeline.remove(ctx, s.id)
	s.log.Info("session closed")
}

func (s *Session) relayClosingLocked(ctx context.Context) error {
	if s.inflight != nil {
		return s.pipeline.opts.Coordinator.Unresolved(ctx, s.req.Token, s.inflight)
	}
	return s.pipeline.opts.Coordinator.Cancel(ctx, s.req.Token)
}

func (s *Session) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseOpen {
		return errno.ErrSessionClosed
	}
	return nil
}

func (s *Session) journal(ctx context.Context, stage string, fill func(*model.SessionEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journalLocked(ctx, stage, fill)
}

// journalLocked appends an entry. A journal failure is logged and does not
// abort the transition.
func (s *Session) journalLocked(ctx context.Context, stage string, fill func(*model.SessionEvent)) {
	ev := &model.SessionEvent{
		SessionID:  s.id,
		RequestKey: origin.Key(s.req.Token),
		Stage:      stage,
		Network:    s.net.Name,
		Address:    s.address,
		Fee:        decimal.Zero,
	}
	if s.unsigned != nil {
		n := s.unsigned.Nonce()
		ev.Nonce = &n
		ev.Fee = decimal.NewFromUint64(s.unsigned.Fee())
	}
	if s.signed != nil {
		ev.TxID = s.signed.TxID
	}
	if fill != nil {
		fill(ev)
	}
	if err := s.pipeline.opts.Journal.Append(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Error("journal append", zap.String("stage", stage), zap.Error(err))
	}
}
