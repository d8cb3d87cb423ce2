package wire

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DecodeHex accepts hex with or without a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// EncodeHex returns 0x-prefixed hex.
func EncodeHex(b []byte) string {
	return hexutil.Encode(b)
}
