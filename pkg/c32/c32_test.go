package c32

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_BootAddresses(t *testing.T) {
	zero := make([]byte, 20)

	tests := []struct {
		name    string
		version byte
		want    string
	}{
		{"mainnet", MainnetSingleSig, "SP000000000000000000002Q6VF78"},
		{"testnet", TestnetSingleSig, "ST000000000000000000002AMW42H"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Address(tt.version, zero)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			version, hash, err := ParseAddress(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, zero, hash)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00},
		{0x00, 0x00, 0x01},
		{0xff},
		{0x01, 0x02, 0x03, 0x04, 0x05},
		[]byte(strings.Repeat("\xaa", 20)),
	}
	for _, in := range inputs {
		enc := Encode(in)
		dec, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, in, dec, "round trip of %x via %s", in, enc)
	}
}

func TestDecode_Normalizes(t *testing.T) {
	a, err := Decode("1o")
	require.NoError(t, err)
	b, err := Decode("10")
	require.NoError(t, err)
	assert.Equal(t, b, a)

	_, err = Decode("U")
	assert.ErrorIs(t, err, ErrInvalidCharacter)
}

func TestParseAddress_Errors(t *testing.T) {
	tests := []struct {
		name string
		addr string
		err  error
	}{
		{"empty", "", ErrInvalidAddress},
		{"no prefix", "XP000000000000000000002Q6VF78", ErrInvalidAddress},
		{"bad checksum", "SP000000000000000000002Q6VF79", ErrInvalidChecksum},
		{"bad char", "SP00000000000000000000U", ErrInvalidCharacter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseAddress(tt.addr)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestAddress_RejectsShortHash(t *testing.T) {
	_, err := Address(MainnetSingleSig, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
