package request

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/wire"
)

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func transferPayload(priv *btcec.PrivateKey) map[string]any {
	return map[string]any{
		"txType":     "token_transfer",
		"publicKey":  hex.EncodeToString(priv.PubKey().SerializeCompressed()),
		"recipient":  "ST000000000000000000002AMW42H",
		"amount":     "1000000",
		"memo":       "thanks",
		"appDetails": map[string]string{"name": "Test App"},
		"network":    map[string]any{"chainId": 2147483648, "coreApiUrl": "http://localhost:3999"},
	}
}

func TestSignToken_Verify(t *testing.T) {
	priv := newKey(t)
	token, err := SignToken(transferPayload(priv), priv)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	tok, err := DecodeToken(token)
	require.NoError(t, err)
	require.NoError(t, tok.Verify(hex.EncodeToString(priv.PubKey().SerializeCompressed())))
	assert.True(t, tok.Verified)

	other := newKey(t)
	tok, _ = DecodeToken(token)
	assert.ErrorIs(t, tok.Verify(hex.EncodeToString(other.PubKey().SerializeCompressed())), ErrSignatureInvalid)
	assert.False(t, tok.Verified)
}

func TestDecodeToken_Malformed(t *testing.T) {
	tests := []string{"", "a.b", "a.b.c.d", "!!.e30.sig", "e30.!!.sig", "e30.bm90anNvbg.sig"}
	for _, raw := range tests {
		_, err := DecodeToken(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", raw)
	}
}

func TestParse_TokenTransfer(t *testing.T) {
	priv := newKey(t)
	token, err := SignToken(transferPayload(priv), priv)
	require.NoError(t, err)

	req, err := Parse(token)
	require.NoError(t, err)
	assert.True(t, req.Authorized)
	assert.Equal(t, wire.PostConditionModeDeny, req.PostConditionMode)
	require.NotNil(t, req.Network)
	assert.Equal(t, wire.ChainIDTestnet, req.Network.ChainID)
	assert.Equal(t, "Test App", req.AppDetails.Name)

	tt, ok := req.TokenTransfer()
	require.True(t, ok)
	assert.Equal(t, "1000000", tt.Amount.String())
	assert.Equal(t, "thanks", tt.Memo)
	_, ok = req.ContractCall()
	assert.False(t, ok)
}

func TestParse_ForgedSignatureIsUnauthorized(t *testing.T) {
	priv := newKey(t)
	payload := transferPayload(priv)
	// 用另一个私钥签名，但 payload 声称是 priv 的公钥
	token, err := SignToken(payload, newKey(t))
	require.NoError(t, err)

	req, err := Parse(token)
	require.NoError(t, err)
	assert.False(t, req.Authorized)
}

func TestParse_ContractCall(t *testing.T) {
	priv := newKey(t)
	token, err := SignToken(map[string]any{
		"txType":            "contract_call",
		"publicKey":         hex.EncodeToString(priv.PubKey().SerializeCompressed()),
		"contractAddress":   "SP000000000000000000002Q6VF78",
		"contractName":      "market",
		"functionName":      "buy",
		"functionArgs":      []string{hex.EncodeToString(wire.UIntCV(1))},
		"postConditionMode": 1,
		"fee":               "3000",
		"sponsored":         true,
	}, priv)
	require.NoError(t, err)

	req, err := Parse(token)
	require.NoError(t, err)
	assert.Equal(t, wire.PostConditionModeAllow, req.PostConditionMode)
	assert.True(t, req.Sponsored)
	require.NotNil(t, req.CustomFee)
	assert.Equal(t, "3000", req.CustomFee.String())
	assert.Nil(t, req.Network)

	cc, ok := req.ContractCall()
	require.True(t, ok)
	assert.Equal(t, "buy", cc.FunctionName)
	assert.Len(t, cc.FunctionArgs, 1)
}

func TestParse_ValidationErrors(t *testing.T) {
	priv := newKey(t)
	pub := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	tests := []struct {
		name    string
		payload map[string]any
		msg     string
	}{
		{"unknown type", map[string]any{"txType": "stake", "publicKey": pub}, "txType must be one of"},
		{"missing recipient", map[string]any{"txType": "token_transfer", "publicKey": pub, "amount": "1"}, "recipient is required"},
		{"missing function", map[string]any{"txType": "contract_call", "publicKey": pub, "contractAddress": "SP1", "contractName": "c"}, "functionName is required"},
		{"missing code", map[string]any{"txType": "smart_contract", "publicKey": pub, "contractName": "c"}, "codeBody is required"},
		{"bad post-condition hex", map[string]any{"txType": "smart_contract", "publicKey": pub, "contractName": "c", "codeBody": "(ok)", "postConditions": []string{"zz"}}, "must be hex encoded"},
		{"bad mode", map[string]any{"txType": "smart_contract", "publicKey": pub, "contractName": "c", "codeBody": "(ok)", "postConditionMode": 3}, "postConditionMode must be one of"},
		{"bad amount", map[string]any{"txType": "token_transfer", "publicKey": pub, "recipient": "x", "amount": "lots"}, "is not a number"},
		{"negative fee", map[string]any{"txType": "smart_contract", "publicKey": pub, "contractName": "c", "codeBody": "(ok)", "fee": "-1"}, "fee must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := SignToken(tt.payload, priv)
			require.NoError(t, err)

			_, err = Parse(token)
			require.ErrorIs(t, err, errno.ErrInvalidRequest)
			assert.Equal(t, errno.KindValidation, errno.KindOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
