package wire

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

type TransactionVersion byte

const (
	TransactionVersionMainnet TransactionVersion = 0x00
	TransactionVersionTestnet TransactionVersion = 0x80
)

const (
	ChainIDMainnet uint32 = 0x00000001
	ChainIDTestnet uint32 = 0x80000000
)

type AuthType byte

const (
	AuthStandard  AuthType = 0x04
	AuthSponsored AuthType = 0x05
)

type AnchorMode byte

const (
	AnchorOnChainOnly  AnchorMode = 0x01
	AnchorOffChainOnly AnchorMode = 0x02
	AnchorAny          AnchorMode = 0x03
)

type PostConditionMode byte

const (
	PostConditionModeAllow PostConditionMode = 0x01
	PostConditionModeDeny  PostConditionMode = 0x02
)

const (
	HashModeP2PKH         byte = 0x00
	KeyEncodingCompressed byte = 0x00
)

const (
	MemoLength      = 34
	SignatureLength = 65
)

var ErrInvalidTransaction = errors.New("wire: invalid transaction")

// SpendingCondition is a single-signature P2PKH spending condition.
type SpendingCondition struct {
	HashMode    byte
	Signer      [20]byte
	Nonce       uint64
	Fee         uint64
	KeyEncoding byte
	Signature   [SignatureLength]byte
}

// NewSpendingCondition builds a P2PKH condition for a compressed public key.
func NewSpendingCondition(compressedPubKey []byte, nonce, fee uint64) SpendingCondition {
	sc := SpendingCondition{HashMode: HashModeP2PKH, KeyEncoding: KeyEncodingCompressed, Nonce: nonce, Fee: fee}
	copy(sc.Signer[:], btcutil.Hash160(compressedPubKey))
	return sc
}

// EmptySpendingCondition is the placeholder sponsor condition: the signer of an
// all-zero public key, nonce and fee zero, no signature.
func EmptySpendingCondition() SpendingCondition {
	return NewSpendingCondition(make([]byte, 33), 0, 0)
}

// Cleared returns the condition with nonce, fee and signature zeroed.
func (sc SpendingCondition) Cleared() SpendingCondition {
	sc.Nonce = 0
	sc.Fee = 0
	sc.Signature = [SignatureLength]byte{}
	return sc
}

func (sc SpendingCondition) encode(w *Writer) {
	w.Byte(sc.HashMode)
	w.Raw(sc.Signer[:])
	w.Uint64(sc.Nonce)
	w.Uint64(sc.Fee)
	w.Byte(sc.KeyEncoding)
	w.Raw(sc.Signature[:])
}

func readSpendingCondition(r *Reader) (SpendingCondition, error) {
	var sc SpendingCondition
	var err error
	if sc.HashMode, err = r.Byte(); err != nil {
		return sc, err
	}
	if sc.HashMode != HashModeP2PKH {
		return sc, fmt.Errorf("unsupported hash mode 0x%02x", sc.HashMode)
	}
	signer, err := r.Next(20)
	if err != nil {
		return sc, err
	}
	copy(sc.Signer[:], signer)
	if sc.Nonce, err = r.Uint64(); err != nil {
		return sc, err
	}
	if sc.Fee, err = r.Uint64(); err != nil {
		return sc, err
	}
	if sc.KeyEncoding, err = r.Byte(); err != nil {
		return sc, err
	}
	sig, err := r.Next(SignatureLength)
	if err != nil {
		return sc, err
	}
	copy(sc.Signature[:], sig)
	return sc, nil
}

// Authorization carries the origin condition and, when sponsored, the sponsor's.
type Authorization struct {
	Type    AuthType
	Origin  SpendingCondition
	Sponsor *SpendingCondition
}

func (a Authorization) encode(w *Writer) error {
	w.Byte(byte(a.Type))
	a.Origin.encode(w)
	switch a.Type {
	case AuthStandard:
	case AuthSponsored:
		if a.Sponsor == nil {
			return fmt.Errorf("%w: sponsored auth without sponsor condition", ErrInvalidTransaction)
		}
		a.Sponsor.encode(w)
	default:
		return fmt.Errorf("%w: auth type 0x%02x", ErrInvalidTransaction, byte(a.Type))
	}
	return nil
}

type Transaction struct {
	Version           TransactionVersion
	ChainID           uint32
	Auth              Authorization
	AnchorMode        AnchorMode
	PostConditionMode PostConditionMode
	PostConditions    []PostCondition
	Payload           Payload
}

// Serialize produces the consensus encoding.
func (tx *Transaction) Serialize() ([]byte, error) {
	w := &Writer{}
	w.Byte(byte(tx.Version))
	w.Uint32(tx.ChainID)
	if err := tx.Auth.encode(w); err != nil {
		return nil, err
	}
	w.Byte(byte(tx.AnchorMode))
	w.Byte(byte(tx.PostConditionMode))
	w.Uint32(uint32(len(tx.PostConditions)))
	for i, pc := range tx.PostConditions {
		if err := pc.encode(w); err != nil {
			return nil, fmt.Errorf("post-condition %d: %w", i, err)
		}
	}
	if tx.Payload == nil {
		return nil, fmt.Errorf("%w: missing payload", ErrInvalidTransaction)
	}
	if err := tx.Payload.encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// TxID is the hex sha512/256 of the serialized transaction.
func (tx *Transaction) TxID() (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	return TxIDFromRaw(raw), nil
}

func TxIDFromRaw(raw []byte) string {
	sum := sha512.Sum512_256(raw)
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy; signing always works on a clone.
func (tx *Transaction) Clone() *Transaction {
	out := *tx
	if tx.Auth.Sponsor != nil {
		sp := *tx.Auth.Sponsor
		out.Auth.Sponsor = &sp
	}
	if tx.PostConditions != nil {
		out.PostConditions = make([]PostCondition, len(tx.PostConditions))
		for i, pc := range tx.PostConditions {
			pc.AssetValue = append(ClarityValue(nil), pc.AssetValue...)
			out.PostConditions[i] = pc
		}
	}
	if tx.Payload != nil {
		out.Payload = tx.Payload.clone()
	}
	return &out
}

// DeserializeTransaction parses a full transaction and rejects trailing bytes.
func DeserializeTransaction(b []byte) (*Transaction, error) {
	r := NewReader(b)
	tx, err := readTransaction(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return tx, nil
}

func readTransaction(r *Reader) (*Transaction, error) {
	tx := &Transaction{}
	v, err := r.Byte()
	if err != nil {
		return nil, err
	}
	tx.Version = TransactionVersion(v)
	if tx.ChainID, err = r.Uint32(); err != nil {
		return nil, err
	}

	at, err := r.Byte()
	if err != nil {
		return nil, err
	}
	tx.Auth.Type = AuthType(at)
	if tx.Auth.Origin, err = readSpendingCondition(r); err != nil {
		return nil, err
	}
	switch tx.Auth.Type {
	case AuthStandard:
	case AuthSponsored:
		sp, err := readSpendingCondition(r)
		if err != nil {
			return nil, err
		}
		tx.Auth.Sponsor = &sp
	default:
		return nil, fmt.Errorf("auth type 0x%02x", at)
	}

	am, err := r.Byte()
	if err != nil {
		return nil, err
	}
	tx.AnchorMode = AnchorMode(am)
	pm, err := r.Byte()
	if err != nil {
		return nil, err
	}
	tx.PostConditionMode = PostConditionMode(pm)
	if tx.PostConditionMode != PostConditionModeAllow && tx.PostConditionMode != PostConditionModeDeny {
		return nil, fmt.Errorf("post-condition mode 0x%02x", pm)
	}

	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	tx.PostConditions = make([]PostCondition, 0, min(int(n), 64))
	for i := uint32(0); i < n; i++ {
		pc, err := readPostCondition(r)
		if err != nil {
			return nil, err
		}
		tx.PostConditions = append(tx.PostConditions, pc)
	}

	if tx.Payload, err = readPayload(r); err != nil {
		return nil, err
	}
	return tx, nil
}
