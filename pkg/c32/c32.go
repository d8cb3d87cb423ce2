// Package c32 implements the Crockford base32 "c32check" encoding used for
// Stacks addresses.
package c32

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address versions for single-sig (P2PKH) and multi-sig (P2SH) accounts.
const (
	MainnetSingleSig byte = 22 // 'P'
	MainnetMultiSig  byte = 20 // 'M'
	TestnetSingleSig byte = 26 // 'T'
	TestnetMultiSig  byte = 21 // 'N'
)

var (
	ErrInvalidCharacter = errors.New("c32: invalid character")
	ErrInvalidChecksum  = errors.New("c32: checksum mismatch")
	ErrInvalidAddress   = errors.New("c32: malformed address")
)

var radix = big.NewInt(32)

// Encode converts data to c32. Every leading zero byte becomes one leading '0'.
func Encode(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}

	n := new(big.Int).SetBytes(data[zeros:])
	var digits []byte
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		digits = append(digits, alphabet[mod.Int64()])
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return strings.Repeat("0", zeros) + string(digits)
}

// Decode reverses Encode. Input is case-insensitive; O is read as 0 and L, I as 1.
func Decode(s string) ([]byte, error) {
	s = normalize(s)

	zeros := 0
	for zeros < len(s) && s[zeros] == '0' {
		zeros++
	}

	n := new(big.Int)
	for i := zeros; i < len(s); i++ {
		idx := strings.IndexByte(alphabet, s[i])
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCharacter, s[i])
		}
		n.Mul(n, radix)
		n.Add(n, big.NewInt(int64(idx)))
	}
	return append(make([]byte, zeros), n.Bytes()...), nil
}

func normalize(s string) string {
	s = strings.ToUpper(s)
	return strings.NewReplacer("O", "0", "L", "1", "I", "1").Replace(s)
}

func checksum(version byte, payload []byte) []byte {
	buf := append([]byte{version}, payload...)
	return chainhash.DoubleHashB(buf)[:4]
}

// CheckEncode produces version-char ‖ c32(payload ‖ checksum).
func CheckEncode(version byte, payload []byte) (string, error) {
	if version >= 32 {
		return "", fmt.Errorf("%w: version %d", ErrInvalidAddress, version)
	}
	data := append(append([]byte{}, payload...), checksum(version, payload)...)
	return string(alphabet[version]) + Encode(data), nil
}

// CheckDecode reverses CheckEncode and verifies the checksum.
func CheckDecode(s string) (byte, []byte, error) {
	if len(s) < 2 {
		return 0, nil, ErrInvalidAddress
	}
	s = normalize(s)
	version := strings.IndexByte(alphabet, s[0])
	if version < 0 {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidCharacter, s[0])
	}
	data, err := Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(data) < 4 {
		return 0, nil, ErrInvalidAddress
	}
	payload, sum := data[:len(data)-4], data[len(data)-4:]
	if !bytes.Equal(sum, checksum(byte(version), payload)) {
		return 0, nil, ErrInvalidChecksum
	}
	return byte(version), payload, nil
}

// Address encodes a 20-byte hash160 as an "S" address.
func Address(version byte, hash160 []byte) (string, error) {
	if len(hash160) != 20 {
		return "", fmt.Errorf("%w: hash160 must be 20 bytes, got %d", ErrInvalidAddress, len(hash160))
	}
	body, err := CheckEncode(version, hash160)
	if err != nil {
		return "", err
	}
	return "S" + body, nil
}

// ParseAddress returns the version and hash160 of an "S" address.
func ParseAddress(addr string) (byte, []byte, error) {
	if len(addr) < 3 || (addr[0] != 'S' && addr[0] != 's') {
		return 0, nil, ErrInvalidAddress
	}
	version, hash, err := CheckDecode(addr[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(hash) != 20 {
		return 0, nil, ErrInvalidAddress
	}
	return version, hash, nil
}

// PublicKeyAddress derives the single-sig address of a compressed public key.
func PublicKeyAddress(version byte, compressedPubKey []byte) (string, error) {
	return Address(version, btcutil.Hash160(compressedPubKey))
}
