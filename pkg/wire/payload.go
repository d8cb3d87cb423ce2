package wire

import (
	"fmt"
)

type PayloadType byte

const (
	PayloadTokenTransfer PayloadType = 0x00
	PayloadSmartContract PayloadType = 0x01
	PayloadContractCall  PayloadType = 0x02
)

func (t PayloadType) String() string {
	switch t {
	case PayloadTokenTransfer:
		return "token_transfer"
	case PayloadSmartContract:
		return "smart_contract"
	case PayloadContractCall:
		return "contract_call"
	default:
		return fmt.Sprintf("payload(0x%02x)", byte(t))
	}
}

// Payload is implemented by TokenTransferPayload, ContractCallPayload and
// SmartContractPayload only.
type Payload interface {
	Type() PayloadType
	encode(w *Writer) error
	clone() Payload
}

type TokenTransferPayload struct {
	Recipient Principal
	Amount    uint64
	Memo      [MemoLength]byte
}

// NewMemo right-pads memo with zero bytes.
func NewMemo(memo string) ([MemoLength]byte, error) {
	var m [MemoLength]byte
	if len(memo) > MemoLength {
		return m, fmt.Errorf("memo is %d bytes, limit %d", len(memo), MemoLength)
	}
	copy(m[:], memo)
	return m, nil
}

func (p *TokenTransferPayload) Type() PayloadType { return PayloadTokenTransfer }

func (p *TokenTransferPayload) encode(w *Writer) error {
	w.Byte(byte(PayloadTokenTransfer))
	if err := encodeClarityPrincipal(w, p.Recipient); err != nil {
		return err
	}
	w.Uint64(p.Amount)
	w.Raw(p.Memo[:])
	return nil
}

func (p *TokenTransferPayload) clone() Payload {
	c := *p
	return &c
}

type ContractCallPayload struct {
	Contract     Address
	ContractName string
	FunctionName string
	Args         []ClarityValue
}

func (p *ContractCallPayload) Type() PayloadType { return PayloadContractCall }

func (p *ContractCallPayload) encode(w *Writer) error {
	w.Byte(byte(PayloadContractCall))
	p.Contract.encode(w)
	if err := w.Name(p.ContractName); err != nil {
		return err
	}
	if err := w.Name(p.FunctionName); err != nil {
		return err
	}
	w.Uint32(uint32(len(p.Args)))
	for i, arg := range p.Args {
		if _, err := DecodeClarityValue(arg); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		w.Raw(arg)
	}
	return nil
}

func (p *ContractCallPayload) clone() Payload {
	c := *p
	if p.Args != nil {
		c.Args = make([]ClarityValue, len(p.Args))
		for i, a := range p.Args {
			c.Args[i] = append(ClarityValue(nil), a...)
		}
	}
	return &c
}

type SmartContractPayload struct {
	Name string
	Code string
}

func (p *SmartContractPayload) Type() PayloadType { return PayloadSmartContract }

func (p *SmartContractPayload) encode(w *Writer) error {
	w.Byte(byte(PayloadSmartContract))
	if err := w.Name(p.Name); err != nil {
		return err
	}
	w.LenPrefixed4([]byte(p.Code))
	return nil
}

func (p *SmartContractPayload) clone() Payload {
	c := *p
	return &c
}

func readPayload(r *Reader) (Payload, error) {
	t, err := r.Byte()
	if err != nil {
		return nil, err
	}
	switch PayloadType(t) {
	case PayloadTokenTransfer:
		p := &TokenTransferPayload{}
		if p.Recipient, err = readClarityPrincipal(r); err != nil {
			return nil, err
		}
		if p.Amount, err = r.Uint64(); err != nil {
			return nil, err
		}
		memo, err := r.Next(MemoLength)
		if err != nil {
			return nil, err
		}
		copy(p.Memo[:], memo)
		return p, nil
	case PayloadContractCall:
		p := &ContractCallPayload{}
		if p.Contract, err = readAddress(r); err != nil {
			return nil, err
		}
		if p.ContractName, err = r.Name(); err != nil {
			return nil, err
		}
		if p.FunctionName, err = r.Name(); err != nil {
			return nil, err
		}
		n, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		p.Args = make([]ClarityValue, 0, min(int(n), 64))
		for i := uint32(0); i < n; i++ {
			arg, err := ReadClarityValue(r)
			if err != nil {
				return nil, err
			}
			p.Args = append(p.Args, arg)
		}
		return p, nil
	case PayloadSmartContract:
		p := &SmartContractPayload{}
		if p.Name, err = r.Name(); err != nil {
			return nil, err
		}
		code, err := r.LenPrefixed4()
		if err != nil {
			return nil, err
		}
		p.Code = string(code)
		return p, nil
	default:
		return nil, fmt.Errorf("payload type 0x%02x", t)
	}
}
