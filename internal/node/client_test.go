package node

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "SP000000000000000000002Q6VF78"

func newTestServer(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTClient(srv.URL+"/", 2*time.Second)
}

func TestRESTClient_AccountNonces(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extended/v1/address/"+addr+"/nonces", r.URL.Path)
		_, _ = io.WriteString(w, `{"last_executed_tx_nonce":48,"last_mempool_tx_nonce":null,"possible_next_nonce":49,"detected_missing_nonces":[],"detected_mempool_nonces":[]}`)
	})

	info, err := c.AccountNonces(context.Background(), addr)
	require.NoError(t, err)
	require.NotNil(t, info.LastExecutedTxNonce)
	assert.Equal(t, uint64(48), *info.LastExecutedTxNonce)
	assert.Nil(t, info.LastMempoolTxNonce)
	assert.Equal(t, uint64(49), info.PossibleNextNonce)
}

func TestRESTClient_AccountBalance(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"stx":{"balance":"1500000","total_sent":"0","total_received":"1500000","locked":"500000"},"fungible_tokens":{},"non_fungible_tokens":{}}`)
	})

	bal, err := c.AccountBalance(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "1500000", bal.STX.Balance.String())
	assert.Equal(t, "1000000", bal.STX.Available().String())
}

func TestStxBalance_AvailableClampsAtZero(t *testing.T) {
	b := StxBalance{Balance: decimal.NewFromInt(10), Locked: decimal.NewFromInt(11)}
	assert.True(t, b.Available().IsZero())
}

func TestRESTClient_ContractInterface(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/contracts/interface/" + addr + "/market":
			_, _ = io.WriteString(w, `{"functions":[{"name":"buy","access":"public","args":[],"outputs":{}}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	ci, err := c.ContractInterface(context.Background(), addr, "market")
	require.NoError(t, err)
	fn, ok := ci.Function("buy")
	assert.True(t, ok)
	assert.Equal(t, "public", fn.Access)

	_, err = c.ContractInterface(context.Background(), addr, "missing")
	assert.ErrorIs(t, err, ErrContractNotFound)
}

func TestRESTClient_BroadcastTransaction(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantTxID   string
		wantReason string
		wantErr    error
	}{
		{name: "accepted", status: 200, body: `"0xabc123"`, wantTxID: "abc123"},
		{name: "rejected", status: 400, body: `{"error":"transaction rejected","reason":"ConflictingNonceInMempool","txid":"abc"}`, wantReason: "ConflictingNonceInMempool"},
		{name: "server error", status: 502, body: `bad gateway`, wantErr: ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
				raw, _ := io.ReadAll(r.Body)
				assert.Equal(t, []byte{1, 2, 3}, raw)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			txid, err := c.BroadcastTransaction(context.Background(), []byte{1, 2, 3})
			switch {
			case tt.wantReason != "":
				var rejected *RejectedError
				require.True(t, errors.As(err, &rejected))
				assert.Equal(t, tt.wantReason, rejected.Reason)
				assert.JSONEq(t, tt.body, string(rejected.Body))
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantTxID, txid)
			}
		})
	}
}

func TestRESTClient_BreakerOpensOnOutage(t *testing.T) {
	calls := 0
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 8; i++ {
		_, err := c.AccountNonces(context.Background(), addr)
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, 5, calls, "breaker stops calling the node after 5 consecutive failures")
}

func TestPool_ReusesClients(t *testing.T) {
	p := NewPool(time.Second)
	a := p.Get("http://a")
	assert.Same(t, a, p.Get("http://a"))
	assert.NotSame(t, a, p.Get("http://b"))
}
