package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// Clarity value type tags.
const (
	ClarityInt               byte = 0x00
	ClarityUInt              byte = 0x01
	ClarityBuffer            byte = 0x02
	ClarityTrue              byte = 0x03
	ClarityFalse             byte = 0x04
	ClarityStandardPrincipal byte = 0x05
	ClarityContractPrincipal byte = 0x06
	ClarityResponseOk        byte = 0x07
	ClarityResponseErr       byte = 0x08
	ClarityNone              byte = 0x09
	ClaritySome              byte = 0x0a
	ClarityList              byte = 0x0b
	ClarityTuple             byte = 0x0c
	ClarityStringASCII       byte = 0x0d
	ClarityStringUTF8        byte = 0x0e
)

const maxClarityDepth = 32

var ErrInvalidClarityValue = errors.New("wire: invalid clarity value")

// ClarityValue holds one consensus-serialized Clarity value.
type ClarityValue []byte

func (v ClarityValue) Type() byte {
	if len(v) == 0 {
		return 0xff
	}
	return v[0]
}

// DecodeClarityValue validates b as exactly one Clarity value.
func DecodeClarityValue(b []byte) (ClarityValue, error) {
	r := NewReader(b)
	v, err := ReadClarityValue(r)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClarityValue, err)
	}
	return v, nil
}

// ReadClarityValue consumes one value from r and returns a copy of its bytes.
func ReadClarityValue(r *Reader) (ClarityValue, error) {
	start := r.Offset()
	if err := skipClarity(r, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClarityValue, err)
	}
	return append(ClarityValue(nil), r.b[start:r.Offset()]...), nil
}

func skipClarity(r *Reader, depth int) error {
	if depth > maxClarityDepth {
		return errors.New("nesting too deep")
	}
	tag, err := r.Byte()
	if err != nil {
		return err
	}
	switch tag {
	case ClarityInt, ClarityUInt:
		_, err = r.Next(16)
	case ClarityBuffer, ClarityStringASCII, ClarityStringUTF8:
		_, err = r.LenPrefixed4()
	case ClarityTrue, ClarityFalse, ClarityNone:
	case ClarityStandardPrincipal:
		_, err = readAddress(r)
	case ClarityContractPrincipal:
		if _, err = readAddress(r); err == nil {
			_, err = r.Name()
		}
	case ClarityResponseOk, ClarityResponseErr, ClaritySome:
		err = skipClarity(r, depth+1)
	case ClarityList:
		var n uint32
		if n, err = r.Uint32(); err != nil {
			return err
		}
		for i := uint32(0); i < n && err == nil; i++ {
			err = skipClarity(r, depth+1)
		}
	case ClarityTuple:
		var n uint32
		if n, err = r.Uint32(); err != nil {
			return err
		}
		for i := uint32(0); i < n && err == nil; i++ {
			if _, err = r.Name(); err == nil {
				err = skipClarity(r, depth+1)
			}
		}
	default:
		return fmt.Errorf("unknown type tag 0x%02x", tag)
	}
	return err
}

func UIntCV(v uint64) ClarityValue {
	b := make([]byte, 17)
	b[0] = ClarityUInt
	binary.BigEndian.PutUint64(b[9:], v)
	return b
}

func IntCV(v int64) ClarityValue {
	n := big.NewInt(v)
	if v < 0 {
		// two's complement over 128 bits
		n.Add(n, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	b := make([]byte, 17)
	b[0] = ClarityInt
	n.FillBytes(b[1:])
	return b
}

func BoolCV(v bool) ClarityValue {
	if v {
		return ClarityValue{ClarityTrue}
	}
	return ClarityValue{ClarityFalse}
}

func BufferCV(data []byte) ClarityValue {
	w := &Writer{}
	w.Byte(ClarityBuffer)
	w.LenPrefixed4(data)
	return w.Bytes()
}

func StringASCIICV(s string) ClarityValue {
	w := &Writer{}
	w.Byte(ClarityStringASCII)
	w.LenPrefixed4([]byte(s))
	return w.Bytes()
}

func NoneCV() ClarityValue { return ClarityValue{ClarityNone} }

func SomeCV(v ClarityValue) ClarityValue {
	return append(ClarityValue{ClaritySome}, v...)
}

func PrincipalCV(p Principal) (ClarityValue, error) {
	w := &Writer{}
	if err := encodeClarityPrincipal(w, p); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeClarityPrincipal(w *Writer, p Principal) error {
	if !p.IsContract() {
		w.Byte(ClarityStandardPrincipal)
		p.Address.encode(w)
		return nil
	}
	w.Byte(ClarityContractPrincipal)
	p.Address.encode(w)
	return w.Name(p.ContractName)
}

func readClarityPrincipal(r *Reader) (Principal, error) {
	tag, err := r.Byte()
	if err != nil {
		return Principal{}, err
	}
	var p Principal
	switch tag {
	case ClarityStandardPrincipal:
		p.Address, err = readAddress(r)
	case ClarityContractPrincipal:
		if p.Address, err = readAddress(r); err == nil {
			p.ContractName, err = r.Name()
		}
	default:
		return p, fmt.Errorf("%w: tag 0x%02x", ErrInvalidPrincipal, tag)
	}
	return p, err
}
