// Package builder assembles unsigned Stacks transactions from resolved inputs.
package builder

import (
	"fmt"

	"wallet-pipeline/internal/network"
	"wallet-pipeline/internal/service/fee"
	"wallet-pipeline/internal/service/request"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/wire"
)

const (
	AllowModeWarningTitle = "This transaction is not secure"
	AllowModeWarningText  = "If you confirm, you allow it to transfer any of your tokens. Only confirm if you trust and have verified the contract."
)

// BuildInput holds everything resolved before assembly. Nonce and Fee are in
// micro-units; Fee is ignored for sponsored transactions.
type BuildInput struct {
	Network           network.Network
	PublicKey         []byte // compressed secp256k1
	Nonce             uint64
	Fee               uint64
	Sponsored         bool
	PostConditions    []wire.PostCondition
	PostConditionMode wire.PostConditionMode
	Details           request.Details
}

// UnsignedTransaction is the snapshot handed to the signer. Tx must not be
// modified once built; use WithFee for a new snapshot.
type UnsignedTransaction struct {
	Tx               *wire.Transaction
	AllowModeWarning bool
}

// Build is pure: the same input always yields byte-identical output.
func Build(in BuildInput) (*UnsignedTransaction, error) {
	if len(in.PublicKey) != 33 {
		return nil, errno.ErrNoActiveAccount.WithMessage("public key must be 33 bytes compressed, got %d", len(in.PublicKey))
	}

	payload, err := buildPayload(in.Details)
	if err != nil {
		return nil, err
	}

	mode := in.PostConditionMode
	if mode == 0 {
		mode = wire.PostConditionModeDeny
	}

	pcs := make([]wire.PostCondition, len(in.PostConditions))
	copy(pcs, in.PostConditions)

	auth := wire.Authorization{Type: wire.AuthStandard}
	if in.Sponsored {
		sponsor := wire.EmptySpendingCondition()
		auth.Type = wire.AuthSponsored
		auth.Origin = wire.NewSpendingCondition(in.PublicKey, in.Nonce, 0)
		auth.Sponsor = &sponsor
	} else {
		auth.Origin = wire.NewSpendingCondition(in.PublicKey, in.Nonce, in.Fee)
	}

	tx := &wire.Transaction{
		Version:           in.Network.TransactionVersion(),
		ChainID:           in.Network.ChainID,
		Auth:              auth,
		AnchorMode:        wire.AnchorAny,
		PostConditionMode: mode,
		PostConditions:    pcs,
		Payload:           payload,
	}
	// 提前序列化一次，尽早暴露编码错误
	if _, err := tx.Serialize(); err != nil {
		return nil, errno.ErrMalformedTransaction.Wrap(err)
	}

	return &UnsignedTransaction{
		Tx:               tx,
		AllowModeWarning: mode == wire.PostConditionModeAllow,
	}, nil
}

// ByteLength is the serialized length used for fee estimation.
func (u *UnsignedTransaction) ByteLength() (int, error) {
	raw, err := u.Tx.Serialize()
	if err != nil {
		return 0, errno.ErrMalformedTransaction.Wrap(err)
	}
	return len(raw), nil
}

// WithFee returns a copy carrying a different origin fee. Sponsored
// transactions keep a zero origin fee.
func (u *UnsignedTransaction) WithFee(micro uint64) *UnsignedTransaction {
	tx := u.Tx.Clone()
	if tx.Auth.Type != wire.AuthSponsored {
		tx.Auth.Origin.Fee = micro
	}
	return &UnsignedTransaction{Tx: tx, AllowModeWarning: u.AllowModeWarning}
}

func (u *UnsignedTransaction) Nonce() uint64 { return u.Tx.Auth.Origin.Nonce }
func (u *UnsignedTransaction) Fee() uint64   { return u.Tx.Auth.Origin.Fee }

func buildPayload(d request.Details) (wire.Payload, error) {
	switch d := d.(type) {
	case request.TokenTransfer:
		return tokenTransfer(d)
	case request.ContractCall:
		return contractCall(d)
	case request.SmartContract:
		return &wire.SmartContractPayload{Name: d.ContractName, Code: d.CodeBody}, nil
	case nil:
		return nil, errno.ErrUnsupportedTransactionType.WithMessage("transaction details are missing")
	default:
		return nil, errno.ErrUnsupportedTransactionType.WithMessage("unsupported transaction type %q", d.TxType())
	}
}

func tokenTransfer(d request.TokenTransfer) (wire.Payload, error) {
	recipient, err := wire.ParsePrincipal(d.Recipient)
	if err != nil {
		return nil, errno.ErrInvalidAddress.Wrap(err)
	}
	amount, err := fee.ToMicro(d.Amount)
	if err != nil {
		return nil, err
	}
	memo, err := wire.NewMemo(d.Memo)
	if err != nil {
		return nil, errno.ErrMemoExceedsLimit.Wrap(err)
	}
	return &wire.TokenTransferPayload{Recipient: recipient, Amount: amount, Memo: memo}, nil
}

func contractCall(d request.ContractCall) (wire.Payload, error) {
	addr, err := wire.ParseAddress(d.ContractAddress)
	if err != nil {
		return nil, errno.ErrInvalidAddress.Wrap(err)
	}
	args := make([]wire.ClarityValue, 0, len(d.FunctionArgs))
	for i, h := range d.FunctionArgs {
		raw, err := wire.DecodeHex(h)
		if err != nil {
			return nil, errno.ErrInvalidClarityValue.Wrap(fmt.Errorf("argument %d: %w", i, err))
		}
		cv, err := wire.DecodeClarityValue(raw)
		if err != nil {
			return nil, errno.ErrInvalidClarityValue.Wrap(fmt.Errorf("argument %d: %w", i, err))
		}
		args = append(args, cv)
	}
	return &wire.ContractCallPayload{
		Contract:     addr,
		ContractName: d.ContractName,
		FunctionName: d.FunctionName,
		Args:         args,
	}, nil
}
