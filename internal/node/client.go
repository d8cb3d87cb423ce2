package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"wallet-pipeline/pkg/logger"
)

// Client is the subset of the Stacks node API the pipeline consumes.
type Client interface {
	AccountNonces(ctx context.Context, address string) (*NonceInfo, error)
	AccountBalance(ctx context.Context, address string) (*AddressBalance, error)
	ContractInterface(ctx context.Context, contractAddress, contractName string) (*ContractInterface, error)
	BroadcastTransaction(ctx context.Context, raw []byte) (string, error)
}

// RESTClient 节点 REST API 客户端，所有调用经过熔断器
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")

	settings := gobreaker.Settings{
		Name:        "stacks-node:" + baseURL,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 节点明确拒绝或返回 404 说明节点本身可用，不计入失败
		IsSuccessful: func(err error) bool {
			var rejected *RejectedError
			return err == nil || errors.As(err, &rejected) || errors.Is(err, ErrContractNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.For(logger.ComponentNode).Warn("node circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &RESTClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *RESTClient) BaseURL() string { return c.baseURL }

func (c *RESTClient) AccountNonces(ctx context.Context, address string) (*NonceInfo, error) {
	var out NonceInfo
	if err := c.get(ctx, "/extended/v1/address/"+url.PathEscape(address)+"/nonces", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) AccountBalance(ctx context.Context, address string) (*AddressBalance, error) {
	var out AddressBalance
	if err := c.get(ctx, "/extended/v1/address/"+url.PathEscape(address)+"/balances", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) ContractInterface(ctx context.Context, contractAddress, contractName string) (*ContractInterface, error) {
	var out ContractInterface
	path := fmt.Sprintf("/v2/contracts/interface/%s/%s", url.PathEscape(contractAddress), url.PathEscape(contractName))
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BroadcastTransaction posts raw bytes and returns the txid the node reports.
func (c *RESTClient) BroadcastTransaction(ctx context.Context, raw []byte) (string, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transactions", bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer closeBody(resp)

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if resp.StatusCode >= 500 {
				return nil, fmt.Errorf("%w: http %d: %s", ErrUnavailable, resp.StatusCode, string(body))
			}
			return nil, newRejectedError(resp.StatusCode, body)
		}

		var txid string
		if err := json.Unmarshal(body, &txid); err != nil {
			// 部分节点直接返回纯文本 txid
			txid = strings.TrimSpace(string(body))
		}
		return strings.TrimPrefix(txid, "0x"), nil
	})
	if err != nil {
		return "", c.breakerErr(err)
	}
	return res.(string), nil
}

func (c *RESTClient) get(ctx context.Context, path string, result interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer closeBody(resp)

		if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/v2/contracts/") {
			return nil, ErrContractNotFound
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("%w: http %d: %s", ErrUnavailable, resp.StatusCode, string(body))
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return nil, nil
	})
	return c.breakerErr(err)
}

func (c *RESTClient) breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func newRejectedError(status int, body []byte) *RejectedError {
	rejected := &RejectedError{StatusCode: status, Body: append(json.RawMessage(nil), body...)}
	var payload struct {
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		rejected.Reason = payload.Reason
		if rejected.Reason == "" {
			rejected.Reason = payload.Error
		}
	} else {
		rejected.Body, _ = json.Marshal(string(body))
	}
	return rejected
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		logger.For(logger.ComponentNode).Debug("failed to close response body", zap.Error(err))
	}
}

// Pool 按节点地址复用客户端
type Pool struct {
	mu      sync.Mutex
	timeout time.Duration
	clients map[string]Client
	newFn   func(baseURL string) Client
}

func NewPool(timeout time.Duration) *Pool {
	p := &Pool{timeout: timeout, clients: make(map[string]Client)}
	p.newFn = func(baseURL string) Client { return NewRESTClient(baseURL, p.timeout) }
	return p
}

// NewStaticPool always hands out c, for tests and single-node tools.
func NewStaticPool(c Client) *Pool {
	return &Pool{clients: make(map[string]Client), newFn: func(string) Client { return c }}
}

func (p *Pool) Get(baseURL string) Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[baseURL]; ok {
		return c
	}
	c := p.newFn(baseURL)
	p.clients[baseURL] = c
	return c
}
