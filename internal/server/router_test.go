package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-pipeline/internal/event"
	"wallet-pipeline/internal/handler"
	"wallet-pipeline/internal/network"
	"wallet-pipeline/internal/node"
	"wallet-pipeline/internal/origin"
	"wallet-pipeline/internal/service/broadcast"
	"wallet-pipeline/internal/service/fee"
	"wallet-pipeline/internal/service/mq"
	"wallet-pipeline/internal/service/nonce"
	"wallet-pipeline/internal/service/request"
	"wallet-pipeline/internal/service/session"
	"wallet-pipeline/pkg/cache"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/keystore"
	"wallet-pipeline/pkg/wire"
)

const nodeURL = "http://node.test"

type stubNode struct {
	balance int64
}

func (s *stubNode) AccountNonces(context.Context, string) (*node.NonceInfo, error) {
	return &node.NonceInfo{PossibleNextNonce: 7}, nil
}

func (s *stubNode) AccountBalance(context.Context, string) (*node.AddressBalance, error) {
	return &node.AddressBalance{STX: node.StxBalance{Balance: decimal.NewFromInt(s.balance)}}, nil
}

func (s *stubNode) ContractInterface(context.Context, string, string) (*node.ContractInterface, error) {
	return nil, node.ErrContractNotFound
}

func (s *stubNode) BroadcastTransaction(_ context.Context, raw []byte) (string, error) {
	return wire.TxIDFromRaw(raw), nil
}

type testServer struct {
	router   *gin.Engine
	producer *mq.MemoryProducer
	app      *btcec.PrivateKey
}

func newTestServer(t *testing.T, balance int64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	walletKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pool := node.NewStaticPool(&stubNode{balance: balance})
	reconciler := nonce.NewReconciler(pool, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute)
	origins := origin.NewMemoryStore()
	producer := mq.NewMemoryProducer()

	pipeline := session.NewPipeline(session.Options{
		Registry: network.NewStaticRegistry("testnet", map[string]network.Network{
			"testnet": {Name: "testnet", URL: nodeURL, ChainID: wire.ChainIDTestnet},
		}),
		Nodes:       pool,
		Nonces:      reconciler,
		Fees:        fee.NewEstimator(1, 1.5, 4),
		Keys:        keystore.NewUnlockedProvider(keystore.NewAccount(walletKey)),
		Coordinator: broadcast.NewCoordinator(pool, reconciler, origins, producer, "", time.Second),
	})

	return &testServer{
		router:   NewHTTPRouter(handler.NewSessionHandler(pipeline, origins)),
		producer: producer,
		app:      app,
	}
}

func (s *testServer) token(t *testing.T, amount string) string {
	t.Helper()
	tok, err := request.SignToken(map[string]any{
		"txType":     "token_transfer",
		"recipient":  "ST000000000000000000002AMW42H",
		"amount":     amount,
		"publicKey":  hex.EncodeToString(s.app.PubKey().SerializeCompressed()),
		"appDetails": map[string]string{"name": "Test App"},
		"network":    map[string]any{"chainId": wire.ChainIDTestnet, "coreApiUrl": nodeURL},
	}, s.app)
	require.NoError(t, err)
	return tok
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestRouter_Ping(t *testing.T) {
	s := newTestServer(t, 0)
	status, resp := s.do(t, http.MethodGet, "/api/v1/ping", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, errno.OK.Code, resp.Code)
}

func TestRouter_Errors(t *testing.T) {
	s := newTestServer(t, 0)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   int
	}{
		{"bad body", http.MethodPost, "/api/v1/requests", "{", http.StatusBadRequest, errno.ErrBind.Code},
		{"missing token", http.MethodPost, "/api/v1/requests", map[string]string{"tab_id": "x"}, http.StatusBadRequest, errno.ErrBind.Code},
		{"garbage token", http.MethodPost, "/api/v1/requests", map[string]string{"token": "not-a-jwt"}, http.StatusBadRequest, errno.ErrInvalidRequest.Code},
		{"unknown session", http.MethodGet, "/api/v1/requests/nope", nil, http.StatusNotFound, errno.ErrNotFound.Code},
		{"confirm unknown session", http.MethodPost, "/api/v1/requests/nope/confirm", nil, http.StatusNotFound, errno.ErrNotFound.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestRouter_OpenConfirm(t *testing.T) {
	s := newTestServer(t, 10_000_000)

	status, resp := s.do(t, http.MethodPost, "/api/v1/requests", map[string]string{
		"token":  s.token(t, "1000"),
		"tab_id": "tab-9",
	})
	require.Equal(t, http.StatusOK, status, resp.Msg)

	var preview struct {
		SessionID string         `json:"session_id"`
		Network   string         `json:"network"`
		Nonce     *uint64        `json:"nonce"`
		Verdict   map[string]any `json:"verdict"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &preview))
	require.NotEmpty(t, preview.SessionID)
	require.NotNil(t, preview.Nonce)
	assert.Equal(t, uint64(7), *preview.Nonce)
	assert.Equal(t, "testnet", preview.Network)
	assert.Equal(t, true, preview.Verdict["can_confirm"])

	// 同一时间只允许一个签名会话
	status, resp = s.do(t, http.MethodPost, "/api/v1/requests", map[string]string{"token": s.token(t, "1")})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, errno.ErrSessionBusy.Code, resp.Code)

	status, resp = s.do(t, http.MethodPost, "/api/v1/requests/"+preview.SessionID+"/confirm", nil)
	require.Equal(t, http.StatusOK, status, resp.Msg)
	var confirmed struct {
		TxID         string         `json:"tx_id"`
		Status       event.TxStatus `json:"status"`
		ExplorerLink string         `json:"explorer_link"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &confirmed))
	assert.Equal(t, event.TxStatusSuccess, confirmed.Status)
	assert.NotEmpty(t, confirmed.TxID)
	assert.Contains(t, confirmed.ExplorerLink, "chain=testnet")

	msgs := s.producer.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tab-9", msgs[0].Key)

	status, _ = s.do(t, http.MethodGet, "/api/v1/requests/"+preview.SessionID+"/journal", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRouter_InsufficientBalance(t *testing.T) {
	s := newTestServer(t, 500)

	status, resp := s.do(t, http.MethodPost, "/api/v1/requests", map[string]string{"token": s.token(t, "1000")})
	require.Equal(t, http.StatusOK, status, resp.Msg)
	var preview struct {
		SessionID string         `json:"session_id"`
		Verdict   map[string]any `json:"verdict"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &preview))
	assert.Equal(t, "stx_transfer_insufficient_funds", preview.Verdict["reason"])
	assert.Equal(t, false, preview.Verdict["can_confirm"])

	status, resp = s.do(t, http.MethodPost, "/api/v1/requests/"+preview.SessionID+"/confirm", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, errno.ErrStxTransferInsufficientFunds.Code, resp.Code)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/requests/"+preview.SessionID, nil)
	assert.Equal(t, http.StatusOK, status)
}
