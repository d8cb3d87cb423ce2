package signer

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-pipeline/internal/network"
	"wallet-pipeline/internal/service/builder"
	"wallet-pipeline/internal/service/request"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/wire"
)

func testKey(seed string) *btcec.PrivateKey {
	b := make([]byte, 32)
	copy(b, seed)
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv
}

func unsigned(t *testing.T, key *btcec.PrivateKey, sponsored bool) *builder.UnsignedTransaction {
	t.Helper()
	u, err := builder.Build(builder.BuildInput{
		Network:   network.Network{ChainID: wire.ChainIDTestnet},
		PublicKey: key.PubKey().SerializeCompressed(),
		Nonce:     3,
		Fee:       200,
		Sponsored: sponsored,
		Details: request.TokenTransfer{
			Recipient: "ST000000000000000000002AMW42H",
			Amount:    decimal.NewFromInt(42),
		},
	})
	require.NoError(t, err)
	return u
}

func TestSign_Deterministic(t *testing.T) {
	key := testKey("alice")
	u := unsigned(t, key, false)

	a, err := Sign(u, key)
	require.NoError(t, err)
	b, err := Sign(u, key)
	require.NoError(t, err)

	assert.Equal(t, a.Raw, b.Raw)
	assert.Equal(t, a.TxID, b.TxID)
	assert.Len(t, a.TxID, 64)
	assert.Equal(t, wire.TxIDFromRaw(a.Raw), a.TxID)
	assert.Equal(t, uint64(3), a.Nonce)
	assert.Equal(t, uint64(200), a.Fee)
}

func TestSign_DoesNotMutateSnapshot(t *testing.T) {
	key := testKey("alice")
	u := unsigned(t, key, false)
	before, err := u.Tx.Serialize()
	require.NoError(t, err)

	_, err = Sign(u, key)
	require.NoError(t, err)

	after, err := u.Tx.Serialize()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, [wire.SignatureLength]byte{}, u.Tx.Auth.Origin.Signature)
}

func TestSign_RecoversSigner(t *testing.T) {
	for _, sponsored := range []bool{false, true} {
		key := testKey("bob")
		signed, err := Sign(unsigned(t, key, sponsored), key)
		require.NoError(t, err)

		tx, err := Verify(signed.Raw)
		require.NoError(t, err)
		pub, err := RecoverPublicKey(tx)
		require.NoError(t, err)
		assert.Equal(t, key.PubKey().SerializeCompressed(), pub)
		assert.LessOrEqual(t, tx.Auth.Origin.Signature[0], byte(3))
	}
}

func TestSign_SigHashIgnoresFeeInInitialHash(t *testing.T) {
	key := testKey("carol")
	u := unsigned(t, key, false)

	h1, err := InitialSigHash(u.Tx)
	require.NoError(t, err)
	h2, err := InitialSigHash(u.WithFee(9999).Tx)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	p1, err := PresignHash(u.Tx)
	require.NoError(t, err)
	p2, err := PresignHash(u.WithFee(9999).Tx)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestSign_WrongKey(t *testing.T) {
	u := unsigned(t, testKey("alice"), false)
	signed, err := Sign(u, testKey("mallory"))
	assert.Nil(t, signed)
	assert.ErrorIs(t, err, errno.ErrSigningFailed)
	assert.ErrorIs(t, err, ErrSignerMismatch)
	assert.Equal(t, errno.KindSigningFailed, errno.KindOf(err))
}

func TestSign_NilInputs(t *testing.T) {
	_, err := Sign(nil, testKey("alice"))
	assert.ErrorIs(t, err, errno.ErrSigningFailed)

	_, err = Sign(unsigned(t, testKey("alice"), false), nil)
	assert.ErrorIs(t, err, errno.ErrSigningFailed)
}

func TestVerify_Tampered(t *testing.T) {
	key := testKey("dave")
	signed, err := Sign(unsigned(t, key, false), key)
	require.NoError(t, err)

	tampered := append([]byte(nil), signed.Raw...)
	tampered[len(tampered)-40] ^= 0xff // inside the amount
	_, err = Verify(tampered)
	assert.Error(t, err)

	_, err = Verify(signed.Raw[:10])
	assert.ErrorIs(t, err, errno.ErrMalformedTransaction)
}

func goldenTransfer(t *testing.T, key *btcec.PrivateKey, sponsored bool) *wire.Transaction {
	t.Helper()
	auth := wire.Authorization{Type: wire.AuthStandard, Origin: wire.NewSpendingCondition(key.PubKey().SerializeCompressed(), 3, 200)}
	if sponsored {
		empty := wire.EmptySpendingCondition()
		auth.Type, auth.Origin.Fee, auth.Sponsor = wire.AuthSponsored, 0, &empty
	}
	return &wire.Transaction{
		Version:           wire.TransactionVersionTestnet,
		ChainID:           wire.ChainIDTestnet,
		Auth:              auth,
		AnchorMode:        wire.AnchorAny,
		PostConditionMode: wire.PostConditionModeDeny,
		Payload:           &wire.TokenTransferPayload{Recipient: wire.Principal{Address: wire.MustParseAddress("ST000000000000000000002AMW42H")}, Amount: 42},
	}
}

// 期望值由独立的 sha512/256 + RFC6979 secp256k1 实现算出
func TestSign_GoldenVectors(t *testing.T) {
	key := testKey("alice")
	require.Equal(t, "02c56b35fcbe1850f319c401456fb169cf0b01ecab322056f71867e54dc4a72f57", hex.EncodeToString(key.PubKey().SerializeCompressed()))

	tests := []struct {
		name      string
		sponsored bool
		initial   string
		presign   string
		signature string
		raw       string
		txid      string
	}{
		{
			name:      "standard",
			sponsored: false,
			initial:   "b0b6ee1e970262706d136f4a6c60cf3250baf00e0d7089a3db9234bf8c86554f",
			presign:   "c89ba7b75c22713f214cadd20e83f1ab2739a9c0c3892d3db3f2ef1a70e437af",
			signature: "002e41ece604a53abfc351a227bffbf967c66182f5f6a972e889ddbdff0b18183a547fc2c5f8d4c5792ecb4789ffffd7a37efa7c217980b3ab1e8365e42d78797b",
			raw:       "80800000000400b1aaa26c6ab05e53741a9f12fff043ec884dba12000000000000000300000000000000c800002e41ece604a53abfc351a227bffbf967c66182f5f6a972e889ddbdff0b18183a547fc2c5f8d4c5792ecb4789ffffd7a37efa7c217980b3ab1e8365e42d78797b03020000000000051a0000000000000000000000000000000000000000000000000000002a00000000000000000000000000000000000000000000000000000000000000000000",
			txid:      "32bd74ad09ab5369bd3218cf69cf5a885a06b0f9238cf65b952a11ef8de83046",
		},
		{
			name:      "sponsored",
			sponsored: true,
			initial:   "b664119105c7b312b6ec4cbcadb016bfc9148e6d2d9cc79dae60cbbc83b822a8",
			presign:   "cc4db600255fc96ce5f17de0f358b7b8293844c86d00c5c1e1994ae36c393d23",
			signature: "009e2b7e1debfbd6bdf57855db46ed5f9ff699321eb1cf00a18c53d4415490be2038f80b08c9bc3ff3b859f46d4b18ca18d5aff6444a26c76a3d6faa3c612201be",
			raw:       "80800000000500b1aaa26c6ab05e53741a9f12fff043ec884dba120000000000000003000000000000000000009e2b7e1debfbd6bdf57855db46ed5f9ff699321eb1cf00a18c53d4415490be2038f80b08c9bc3ff3b859f46d4b18ca18d5aff6444a26c76a3d6faa3c612201be0029cfc6376255a78451eeb4b129ed8eacffa2feef0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000003020000000000051a0000000000000000000000000000000000000000000000000000002a00000000000000000000000000000000000000000000000000000000000000000000",
			txid:      "00f8e91b585622609f07f4aff17c09e4c8eb32edb2db2e41b6159b3e069bbf1d",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := goldenTransfer(t, key, tt.sponsored)
			assert.Equal(t, "b1aaa26c6ab05e53741a9f12fff043ec884dba12", hex.EncodeToString(tx.Auth.Origin.Signer[:]))

			initial, err := InitialSigHash(tx)
			require.NoError(t, err)
			assert.Equal(t, tt.initial, hex.EncodeToString(initial[:]))
			presign, err := PresignHash(tx)
			require.NoError(t, err)
			assert.Equal(t, tt.presign, hex.EncodeToString(presign[:]))

			signed, err := Sign(&builder.UnsignedTransaction{Tx: tx}, key)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, hex.EncodeToString(signed.Raw))
			assert.Equal(t, tt.txid, signed.TxID)

			decoded, err := wire.DeserializeTransaction(signed.Raw)
			require.NoError(t, err)
			assert.Equal(t, tt.signature, hex.EncodeToString(decoded.Auth.Origin.Signature[:]))
		})
	}
}
