package wire

import (
	"errors"
	"fmt"
)

type PostConditionType byte

const (
	PostConditionSTX PostConditionType = 0x00
	PostConditionFT  PostConditionType = 0x01
	PostConditionNFT PostConditionType = 0x02
)

type PrincipalKind byte

const (
	PrincipalOrigin   PrincipalKind = 0x01
	PrincipalStandard PrincipalKind = 0x02
	PrincipalContract PrincipalKind = 0x03
)

type ConditionCode byte

const (
	FungibleEqual        ConditionCode = 0x01
	FungibleGreater      ConditionCode = 0x02
	FungibleGreaterEqual ConditionCode = 0x03
	FungibleLess         ConditionCode = 0x04
	FungibleLessEqual    ConditionCode = 0x05

	NonFungibleSends ConditionCode = 0x10
	NonFungibleOwns  ConditionCode = 0x11
)

var ErrInvalidPostCondition = errors.New("wire: invalid post-condition")

// PostConditionPrincipal identifies whose assets a post-condition constrains.
// Address and ContractName are unused for PrincipalOrigin.
type PostConditionPrincipal struct {
	Kind         PrincipalKind
	Address      Address
	ContractName string
}

type AssetInfo struct {
	Address      Address
	ContractName string
	AssetName    string
}

type PostCondition struct {
	Type       PostConditionType
	Principal  PostConditionPrincipal
	Asset      AssetInfo    // FT and NFT only
	AssetValue ClarityValue // NFT only
	Code       ConditionCode
	Amount     uint64 // STX and FT only
}

func (pc PostCondition) Encode() ([]byte, error) {
	w := &Writer{}
	if err := pc.encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (pc PostCondition) encode(w *Writer) error {
	w.Byte(byte(pc.Type))
	if err := pc.Principal.encode(w); err != nil {
		return err
	}
	switch pc.Type {
	case PostConditionSTX:
		if !pc.Code.fungible() {
			return fmt.Errorf("%w: code 0x%02x", ErrInvalidPostCondition, pc.Code)
		}
		w.Byte(byte(pc.Code))
		w.Uint64(pc.Amount)
	case PostConditionFT:
		if !pc.Code.fungible() {
			return fmt.Errorf("%w: code 0x%02x", ErrInvalidPostCondition, pc.Code)
		}
		if err := pc.Asset.encode(w); err != nil {
			return err
		}
		w.Byte(byte(pc.Code))
		w.Uint64(pc.Amount)
	case PostConditionNFT:
		if pc.Code != NonFungibleSends && pc.Code != NonFungibleOwns {
			return fmt.Errorf("%w: code 0x%02x", ErrInvalidPostCondition, pc.Code)
		}
		if err := pc.Asset.encode(w); err != nil {
			return err
		}
		if _, err := DecodeClarityValue(pc.AssetValue); err != nil {
			return err
		}
		w.Raw(pc.AssetValue)
		w.Byte(byte(pc.Code))
	default:
		return fmt.Errorf("%w: type 0x%02x", ErrInvalidPostCondition, byte(pc.Type))
	}
	return nil
}

// DecodePostCondition parses exactly one serialized post-condition.
func DecodePostCondition(b []byte) (PostCondition, error) {
	r := NewReader(b)
	pc, err := readPostCondition(r)
	if err != nil {
		return pc, err
	}
	if err := r.Done(); err != nil {
		return pc, fmt.Errorf("%w: %v", ErrInvalidPostCondition, err)
	}
	return pc, nil
}

func readPostCondition(r *Reader) (PostCondition, error) {
	var pc PostCondition
	fail := func(err error) (PostCondition, error) {
		return PostCondition{}, fmt.Errorf("%w: %v", ErrInvalidPostCondition, err)
	}

	t, err := r.Byte()
	if err != nil {
		return fail(err)
	}
	pc.Type = PostConditionType(t)
	if pc.Principal, err = readPostConditionPrincipal(r); err != nil {
		return fail(err)
	}

	switch pc.Type {
	case PostConditionSTX, PostConditionFT:
		if pc.Type == PostConditionFT {
			if pc.Asset, err = readAssetInfo(r); err != nil {
				return fail(err)
			}
		}
		code, err := r.Byte()
		if err != nil {
			return fail(err)
		}
		pc.Code = ConditionCode(code)
		if !pc.Code.fungible() {
			return fail(fmt.Errorf("code 0x%02x", code))
		}
		if pc.Amount, err = r.Uint64(); err != nil {
			return fail(err)
		}
	case PostConditionNFT:
		if pc.Asset, err = readAssetInfo(r); err != nil {
			return fail(err)
		}
		if pc.AssetValue, err = ReadClarityValue(r); err != nil {
			return fail(err)
		}
		code, err := r.Byte()
		if err != nil {
			return fail(err)
		}
		pc.Code = ConditionCode(code)
		if pc.Code != NonFungibleSends && pc.Code != NonFungibleOwns {
			return fail(fmt.Errorf("code 0x%02x", code))
		}
	default:
		return fail(fmt.Errorf("type 0x%02x", t))
	}
	return pc, nil
}

func (c ConditionCode) fungible() bool {
	return c >= FungibleEqual && c <= FungibleLessEqual
}

func (p PostConditionPrincipal) encode(w *Writer) error {
	w.Byte(byte(p.Kind))
	switch p.Kind {
	case PrincipalOrigin:
	case PrincipalStandard:
		p.Address.encode(w)
	case PrincipalContract:
		p.Address.encode(w)
		return w.Name(p.ContractName)
	default:
		return fmt.Errorf("%w: principal kind 0x%02x", ErrInvalidPostCondition, byte(p.Kind))
	}
	return nil
}

func readPostConditionPrincipal(r *Reader) (PostConditionPrincipal, error) {
	var p PostConditionPrincipal
	k, err := r.Byte()
	if err != nil {
		return p, err
	}
	p.Kind = PrincipalKind(k)
	switch p.Kind {
	case PrincipalOrigin:
	case PrincipalStandard:
		p.Address, err = readAddress(r)
	case PrincipalContract:
		if p.Address, err = readAddress(r); err == nil {
			p.ContractName, err = r.Name()
		}
	default:
		return p, fmt.Errorf("principal kind 0x%02x", k)
	}
	return p, err
}

func (a AssetInfo) encode(w *Writer) error {
	a.Address.encode(w)
	if err := w.Name(a.ContractName); err != nil {
		return err
	}
	return w.Name(a.AssetName)
}

func readAssetInfo(r *Reader) (AssetInfo, error) {
	var a AssetInfo
	var err error
	if a.Address, err = readAddress(r); err != nil {
		return a, err
	}
	if a.ContractName, err = r.Name(); err != nil {
		return a, err
	}
	a.AssetName, err = r.Name()
	return a, err
}
