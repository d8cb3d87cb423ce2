package postcond

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/wire"
)

const (
	declared = "SP000000000000000000002Q6VF78"
	active   = "ST000000000000000000002AMW42H"
)

func stxCondition(t *testing.T, kind wire.PrincipalKind, addr string, amount uint64) string {
	t.Helper()
	pc := wire.PostCondition{
		Type:      wire.PostConditionSTX,
		Principal: wire.PostConditionPrincipal{Kind: kind},
		Code:      wire.FungibleLessEqual,
		Amount:    amount,
	}
	if kind != wire.PrincipalOrigin {
		pc.Principal.Address = wire.MustParseAddress(addr)
	}
	if kind == wire.PrincipalContract {
		pc.Principal.ContractName = "vault"
	}
	b, err := pc.Encode()
	require.NoError(t, err)
	return hex.EncodeToString(b)
}

func TestResolve_Empty(t *testing.T) {
	got, err := Resolve(nil, declared, active)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestResolve_RewritesDeclaredSender(t *testing.T) {
	in := []string{
		stxCondition(t, wire.PrincipalStandard, declared, 1),
		stxCondition(t, wire.PrincipalContract, declared, 2),
		stxCondition(t, wire.PrincipalOrigin, "", 3),
		stxCondition(t, wire.PrincipalStandard, active, 4),
	}

	got, err := Resolve(in, declared, active)
	require.NoError(t, err)
	require.Len(t, got, 4)

	activeAddr := wire.MustParseAddress(active)
	assert.Equal(t, activeAddr, got[0].Principal.Address, "standard principal equal to declared sender is rewritten")
	assert.Equal(t, wire.MustParseAddress(declared), got[1].Principal.Address, "contract principals are left alone")
	assert.Equal(t, wire.PrincipalOrigin, got[2].Principal.Kind)
	assert.Equal(t, activeAddr, got[3].Principal.Address)

	for i, pc := range got {
		assert.Equal(t, uint64(i+1), pc.Amount, "order is preserved")
	}
}

func TestResolve_NoRewrite(t *testing.T) {
	in := []string{stxCondition(t, wire.PrincipalStandard, declared, 1)}
	tests := []struct {
		name           string
		declaredSender string
		activeAddress  string
	}{
		{"sender matches active", declared, declared},
		{"no declared sender", "", active},
		{"no active account", declared, ""},
		{"neither", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(in, tt.declaredSender, tt.activeAddress)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, wire.MustParseAddress(declared), got[0].Principal.Address)
		})
	}
}

func TestResolve_Malformed(t *testing.T) {
	valid := stxCondition(t, wire.PrincipalStandard, declared, 1)
	tests := map[string]string{
		"not hex":        "zz",
		"truncated":      valid[:len(valid)-4],
		"unknown type":   "09" + valid[2:],
		"trailing bytes": valid + "00",
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve([]string{valid, h}, "", active)
			assert.ErrorIs(t, err, errno.ErrMalformedPostCondition)
			assert.Equal(t, errno.KindValidation, errno.KindOf(err))

			_, again := Resolve([]string{valid, h}, "", active)
			assert.Equal(t, err.Error(), again.Error())
		})
	}
}

func TestResolve_InvalidDeclaredSender(t *testing.T) {
	in := []string{stxCondition(t, wire.PrincipalStandard, declared, 1)}
	_, err := Resolve(in, "not-an-address", active)
	assert.ErrorIs(t, err, errno.ErrInvalidAddress)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := []string{
		stxCondition(t, wire.PrincipalStandard, declared, 10),
		stxCondition(t, wire.PrincipalContract, active, 20),
	}
	decoded, err := Resolve(in, "", active)
	require.NoError(t, err)

	out, err := Encode(decoded)
	require.NoError(t, err)
	for i := range in {
		assert.Equal(t, "0x"+in[i], out[i])
	}
}
