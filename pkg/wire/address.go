package wire

import (
	"errors"
	"fmt"
	"strings"

	"wallet-pipeline/pkg/c32"
)

var ErrInvalidPrincipal = errors.New("wire: invalid principal")

// Address is a version byte plus hash160.
type Address struct {
	Version byte
	Hash160 [20]byte
}

func ParseAddress(s string) (Address, error) {
	version, hash, err := c32.ParseAddress(s)
	if err != nil {
		return Address{}, err
	}
	var a Address
	a.Version = version
	copy(a.Hash160[:], hash)
	return a, nil
}

func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	s, err := c32.Address(a.Version, a.Hash160[:])
	if err != nil {
		return fmt.Sprintf("<invalid address v%d>", a.Version)
	}
	return s
}

func (a Address) encode(w *Writer) {
	w.Byte(a.Version)
	w.Raw(a.Hash160[:])
}

func readAddress(r *Reader) (Address, error) {
	var a Address
	v, err := r.Byte()
	if err != nil {
		return a, err
	}
	h, err := r.Next(20)
	if err != nil {
		return a, err
	}
	a.Version = v
	copy(a.Hash160[:], h)
	return a, nil
}

// Principal is a standard principal, or a contract principal when ContractName is set.
type Principal struct {
	Address      Address
	ContractName string
}

// ParsePrincipal accepts "SP..." or "SP....contract-name".
func ParsePrincipal(s string) (Principal, error) {
	addr, name, isContract := strings.Cut(s, ".")
	if isContract && name == "" {
		return Principal{}, fmt.Errorf("%w: empty contract name in %q", ErrInvalidPrincipal, s)
	}
	a, err := ParseAddress(addr)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if len(name) > MaxNameLength {
		return Principal{}, ErrNameTooLong
	}
	return Principal{Address: a, ContractName: name}, nil
}

func (p Principal) IsContract() bool { return p.ContractName != "" }

func (p Principal) String() string {
	if p.IsContract() {
		return p.Address.String() + "." + p.ContractName
	}
	return p.Address.String()
}
