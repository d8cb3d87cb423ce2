// Package broadcast submits signed transactions and relays the outcome to the
// app that asked for them.
package broadcast

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"wallet-pipeline/internal/event"
	"wallet-pipeline/internal/network"
	"wallet-pipeline/internal/node"
	"wallet-pipeline/internal/origin"
	"wallet-pipeline/internal/service/mq"
	"wallet-pipeline/internal/service/signer"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/logger"
	"wallet-pipeline/pkg/monitor"
)

const (
	DefaultTimeout = 8 * time.Second
	relayedTTL     = time.Hour
)

// NonceAdvancer is the write side of the nonce cache.
type NonceAdvancer interface {
	Advance(ctx context.Context, networkURL, address string, signedNonce uint64) error
}

// Submission is one signed transaction bound to the request that produced it.
type Submission struct {
	RequestToken string
	Network      network.Network
	Address      string
	Signed       *signer.SignedTransaction
}

// Result is the tagged broadcast outcome. NodeError holds the node's rejection
// payload verbatim when Status is failed.
type Result struct {
	Status       event.TxStatus  `json:"status"`
	TxID         string          `json:"tx_id,omitempty"`
	NodeError    json.RawMessage `json:"node_error,omitempty"`
	ExplorerLink string          `json:"explorer_link,omitempty"`
	Relayed      bool            `json:"relayed"`
}

type Coordinator struct {
	nodes    *node.Pool
	nonces   NonceAdvancer
	origins  origin.Store
	producer mq.Producer
	topic    string
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	relayed *gocache.Cache // origin.Key(token) -> struct{}
}

func NewCoordinator(nodes *node.Pool, nonces NonceAdvancer, origins origin.Store, producer mq.Producer, topic string, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if topic == "" {
		topic = event.TopicTxResponse
	}
	return &Coordinator{
		nodes:    nodes,
		nonces:   nonces,
		origins:  origins,
		producer: producer,
		topic:    topic,
		timeout:  timeout,
		log:      logger.For(logger.ComponentBroadcast),
		relayed:  gocache.New(relayedTTL, 2*relayedTTL),
	}
}

// Broadcast submits the signed bytes. The call is detached from ctx
// cancellation and bounded by the coordinator timeout.
//
// Only a success is relayed to the origin: a rejection stays with the user,
// who may bump the fee and resubmit, and a timeout may be retried with the
// same bytes. The returned error is ErrBroadcastFailed for failed and unknown
// results and ErrCommunicationLost when a success could not be relayed.
func (c *Coordinator) Broadcast(ctx context.Context, sub Submission) (*Result, error) {
	if sub.Signed == nil || len(sub.Signed.Raw) == 0 {
		return nil, errno.ErrBroadcastFailed.WithMessage("no signed transaction to broadcast")
	}
	if c.isRelayed(sub.RequestToken) {
		return nil, errno.ErrSessionClosed
	}

	log := c.log.With(logger.TxID(sub.Signed.TxID), logger.Nonce(sub.Signed.Nonce), logger.Network(sub.Network.Name))

	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := time.Now()
	txid, err := c.nodes.Get(sub.Network.URL).BroadcastTransaction(bctx, sub.Signed.Raw)
	monitor.BroadcastDuration.WithLabelValues(sub.Network.Name).Observe(time.Since(start).Seconds())

	res := &Result{TxID: sub.Signed.TxID}
	var rejected *node.RejectedError
	switch {
	case err == nil:
		res.Status = event.TxStatusSuccess
		if txid != "" && txid != sub.Signed.TxID {
			log.Warn("node returned a different txid", zap.String("node_txid", txid))
		}
	case errors.As(err, &rejected):
		res.Status = event.TxStatusFailed
		res.NodeError = rejected.Body
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(bctx.Err(), context.DeadlineExceeded):
		res.Status = event.TxStatusUnknown
	default:
		res.Status = event.TxStatusFailed
		res.NodeError, _ = json.Marshal(err.Error())
	}
	monitor.BroadcastTotal.WithLabelValues(sub.Network.Name, string(res.Status)).Inc()

	switch res.Status {
	case event.TxStatusFailed:
		log.Warn("broadcast rejected", zap.ByteString("node_error", res.NodeError))
		return res, errno.ErrBroadcastFailed.Wrap(err)
	case event.TxStatusUnknown:
		log.Warn("broadcast timed out, transaction may still be accepted", zap.Duration("timeout", c.timeout))
		// 节点可能已收到交易，nonce 视为已占用
		c.advance(ctx, sub, log)
		return res, errno.ErrBroadcastFailed.WithMessage("Broadcast timed out; the transaction may have been accepted").Wrap(err)
	}

	res.ExplorerLink = sub.Network.ExplorerLink(res.TxID)
	log.Info("transaction broadcast", zap.String("explorer", res.ExplorerLink))

	c.advance(ctx, sub, log)

	relayErr := c.relay(ctx, sub.RequestToken, event.TxResponse{
		Status: event.TxStatusSuccess,
		TxID:   res.TxID,
		TxRaw:  hex.EncodeToString(sub.Signed.Raw),
	})
	res.Relayed = relayErr == nil
	if relayErr != nil {
		return res, relayErr
	}
	return res, nil
}

// Cancel relays the cancel message to the origin. It is a no-op once an
// outcome has been relayed for the token.
func (c *Coordinator) Cancel(ctx context.Context, requestToken string) error {
	if c.isRelayed(requestToken) {
		return nil
	}
	return c.relay(ctx, requestToken, event.TxResponse{Cancel: event.CancelMessage})
}

// Unresolved relays an unknown outcome for a transaction whose broadcast
// timed out and was never settled. The origin gets the txid and raw bytes,
// never a cancel, since the node may have accepted it.
func (c *Coordinator) Unresolved(ctx context.Context, requestToken string, signed *signer.SignedTransaction) error {
	if signed == nil {
		return c.Cancel(ctx, requestToken)
	}
	if c.isRelayed(requestToken) {
		return nil
	}
	c.log.Warn("relaying unresolved broadcast", logger.TxID(signed.TxID), logger.Nonce(signed.Nonce))
	return c.relay(ctx, requestToken, event.TxResponse{
		Status: event.TxStatusUnknown,
		TxID:   signed.TxID,
		TxRaw:  hex.EncodeToString(signed.Raw),
	})
}

func (c *Coordinator) advance(ctx context.Context, sub Submission, log *zap.Logger) {
	if c.nonces == nil {
		return
	}
	if err := c.nonces.Advance(context.WithoutCancel(ctx), sub.Network.URL, sub.Address, sub.Signed.Nonce); err != nil {
		log.Error("advance nonce cache", zap.Error(err))
	}
}

// relay sends resp to the origin tab once per token and purges the origin
// record. Any failure is reported as ErrCommunicationLost; the token is still
// marked so no second outcome can follow.
func (c *Coordinator) relay(ctx context.Context, requestToken string, resp event.TxResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := origin.Key(requestToken)
	if _, done := c.relayed.Get(key); done {
		return errno.ErrSessionClosed
	}
	c.relayed.SetDefault(key, struct{}{})

	ctx = context.WithoutCancel(ctx)
	defer func() {
		if err := c.origins.Delete(ctx, requestToken); err != nil {
			c.log.Warn("purge origin record", zap.Error(err))
		}
	}()

	tabID, err := c.origins.TabID(ctx, requestToken)
	if err != nil {
		monitor.RelayTotal.WithLabelValues("lost").Inc()
		c.log.Error("origin lookup failed", logger.RequestKey(key), zap.Error(err))
		return errno.ErrCommunicationLost.Wrap(err)
	}

	payload, err := json.Marshal(event.TransactionResponseEvent{
		TabID:        tabID,
		RequestToken: requestToken,
		Response:     resp,
	})
	if err != nil {
		return errno.ErrCommunicationLost.Wrap(err)
	}
	if err := c.producer.Publish(ctx, c.topic, tabID, payload); err != nil {
		monitor.RelayTotal.WithLabelValues("lost").Inc()
		c.log.Error("publish outcome", zap.String("tab", tabID), zap.Error(err))
		return errno.ErrCommunicationLost.Wrap(err)
	}

	monitor.RelayTotal.WithLabelValues("delivered").Inc()
	return nil
}

func (c *Coordinator) isRelayed(requestToken string) bool {
	_, ok := c.relayed.Get(origin.Key(requestToken))
	return ok
}
