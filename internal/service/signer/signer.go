// Package signer produces signed Stacks transactions from unsigned snapshots.
package signer

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"

	"wallet-pipeline/internal/service/builder"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/wire"
)

// SignCompact 返回的 header 字节: 27 + 4(压缩公钥) + recid
const compactHeader = 27 + 4

var ErrSignerMismatch = errors.New("signer: key does not match transaction signer")

// SignedTransaction is immutable. A fee bump produces a new one.
type SignedTransaction struct {
	Raw   []byte
	TxID  string
	Nonce uint64
	Fee   uint64
}

// Sign signs a clone of the unsigned snapshot with key. The snapshot is left
// untouched and on failure no bytes are returned.
func Sign(u *builder.UnsignedTransaction, key *btcec.PrivateKey) (*SignedTransaction, error) {
	if u == nil || u.Tx == nil {
		return nil, errno.ErrSigningFailed.WithMessage("nothing to sign")
	}
	if key == nil {
		return nil, errno.ErrSigningFailed.Wrap(errno.ErrNoActiveAccount)
	}

	tx := u.Tx.Clone()
	var signer [20]byte
	copy(signer[:], btcutil.Hash160(key.PubKey().SerializeCompressed()))
	if signer != tx.Auth.Origin.Signer {
		return nil, errno.ErrSigningFailed.Wrap(ErrSignerMismatch)
	}

	presign, err := PresignHash(tx)
	if err != nil {
		return nil, errno.ErrSigningFailed.Wrap(err)
	}

	sig := ecdsa.SignCompact(key, presign[:], true)
	tx.Auth.Origin.Signature = toRecoverable(sig)

	raw, err := tx.Serialize()
	if err != nil {
		return nil, errno.ErrSigningFailed.Wrap(err)
	}
	return &SignedTransaction{
		Raw:   raw,
		TxID:  wire.TxIDFromRaw(raw),
		Nonce: tx.Auth.Origin.Nonce,
		Fee:   tx.Auth.Origin.Fee,
	}, nil
}

// InitialSigHash hashes the transaction with the origin condition cleared and,
// when sponsored, the sponsor replaced by the empty condition.
func InitialSigHash(tx *wire.Transaction) ([32]byte, error) {
	c := tx.Clone()
	c.Auth.Origin = c.Auth.Origin.Cleared()
	if c.Auth.Type == wire.AuthSponsored {
		empty := wire.EmptySpendingCondition()
		c.Auth.Sponsor = &empty
	}
	raw, err := c.Serialize()
	if err != nil {
		return [32]byte{}, err
	}
	return sha512.Sum512_256(raw), nil
}

// PresignHash is the digest the origin signs:
// sha512/256(initial || auth type || fee || nonce). The origin always signs
// with the standard auth type, sponsored or not.
func PresignHash(tx *wire.Transaction) ([32]byte, error) {
	initial, err := InitialSigHash(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return presign(initial, wire.AuthStandard, tx.Auth.Origin.Fee, tx.Auth.Origin.Nonce), nil
}

func presign(initial [32]byte, auth wire.AuthType, fee, nonce uint64) [32]byte {
	buf := make([]byte, 0, 32+1+8+8)
	buf = append(buf, initial[:]...)
	buf = append(buf, byte(auth))
	buf = binary.BigEndian.AppendUint64(buf, fee)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	return sha512.Sum512_256(buf)
}

// toRecoverable converts btcec's header||r||s to recid||r||s.
func toRecoverable(compact []byte) [wire.SignatureLength]byte {
	var out [wire.SignatureLength]byte
	out[0] = compact[0] - compactHeader
	copy(out[1:], compact[1:])
	return out
}

// RecoverPublicKey returns the compressed public key that produced the origin
// signature of a signed transaction.
func RecoverPublicKey(tx *wire.Transaction) ([]byte, error) {
	hash, err := PresignHash(tx)
	if err != nil {
		return nil, err
	}
	sig := tx.Auth.Origin.Signature
	if sig[0] > 3 {
		return nil, fmt.Errorf("invalid recovery id %d", sig[0])
	}
	compact := make([]byte, wire.SignatureLength)
	compact[0] = sig[0] + compactHeader
	copy(compact[1:], sig[1:])

	pub, _, err := ecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		return nil, err
	}
	return pub.SerializeCompressed(), nil
}

// Verify checks that raw is a well-formed transaction whose origin signature
// recovers to the declared signer.
func Verify(raw []byte) (*wire.Transaction, error) {
	tx, err := wire.DeserializeTransaction(raw)
	if err != nil {
		return nil, errno.ErrMalformedTransaction.Wrap(err)
	}
	pub, err := RecoverPublicKey(tx)
	if err != nil {
		return nil, errno.ErrSigningFailed.Wrap(err)
	}
	if !bytes.Equal(btcutil.Hash160(pub), tx.Auth.Origin.Signer[:]) {
		return nil, errno.ErrSigningFailed.Wrap(ErrSignerMismatch)
	}
	return tx, nil
}
