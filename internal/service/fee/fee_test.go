package fee

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-pipeline/pkg/errno"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestDefaultFee(t *testing.T) {
	tests := []struct {
		rate   string
		length int
		want   string
	}{
		{"1", 180, "180"},
		{"2.5", 200, "500"},
		{"1", 0, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultFee(dec(tt.rate), tt.length).String())
	}
}

func TestEstimator_Resolve(t *testing.T) {
	e := NewEstimator(1, 1.5, 4)
	def := dec("180")

	tests := []struct {
		name      string
		custom    *decimal.Decimal
		sponsored bool
		want      string
		source    Source
		warning   bool
	}{
		{name: "default", want: "180", source: SourceDefault},
		{name: "custom under threshold", custom: ptr(dec("720")), want: "720", source: SourceCustom},
		{name: "custom above four times default warns", custom: ptr(dec("721")), want: "721", source: SourceCustom, warning: true},
		{name: "sponsored pays nothing", custom: ptr(dec("5000")), sponsored: true, want: "0", source: SourceSponsored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Resolve(def, tt.custom, tt.sponsored)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Amount.String())
			assert.Equal(t, tt.source, got.Source)
			assert.Equal(t, tt.warning, got.HighFeeWarning)
			assert.Equal(t, tt.sponsored, got.IsSponsored)
		})
	}
}

func TestEstimator_ResolveRejectsFractionalCustomFee(t *testing.T) {
	e := NewEstimator(1, 1.5, 4)
	_, err := e.Resolve(dec("180"), ptr(dec("10.5")), false)
	assert.ErrorIs(t, err, errno.ErrTooMuchPrecision)
}

func TestEstimator_Rate(t *testing.T) {
	e := NewEstimator(2, 1.5, 4)

	assert.Equal(t, "2", e.Rate(ModeNormal, Escalation{}).String())
	assert.Equal(t, "3", e.Rate(ModeEscalated, Escalation{}).String())
	assert.Equal(t, "6", e.Rate(ModeEscalated, Escalation{UseCustom: true, CustomMultiplier: dec("3")}).String())
	// UseCustom 为 false 时忽略自定义倍数
	assert.Equal(t, "3", e.Rate(ModeEscalated, Escalation{CustomMultiplier: dec("3")}).String())
}

func TestEstimator_Bump(t *testing.T) {
	e := NewEstimator(1, 1.5, 4)

	tests := []struct {
		name     string
		previous uint64
		length   int
		esc      Escalation
		want     uint64
	}{
		{"escalated rate", 180, 180, Escalation{}, 270},
		{"rounds up", 100, 181, Escalation{}, 272},
		{"floored above previous custom fee", 5000, 180, Escalation{}, 5001},
		{"custom multiplier", 180, 180, Escalation{UseCustom: true, CustomMultiplier: dec("3")}, 540},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Bump(tt.previous, tt.length, tt.esc)
			require.NoError(t, err)
			micro, err := got.Micro()
			require.NoError(t, err)
			assert.Equal(t, tt.want, micro)
			assert.Greater(t, micro, tt.previous)
		})
	}
}

func TestToMicro(t *testing.T) {
	v, err := ToMicro(dec("1000000"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000), v)

	_, err = ToMicro(dec("0.1"))
	assert.ErrorIs(t, err, errno.ErrTooMuchPrecision)

	_, err = ToMicro(dec("-1"))
	assert.ErrorIs(t, err, errno.ErrInvalidRequest)

	_, err = ToMicro(dec("18446744073709551616"))
	assert.ErrorIs(t, err, errno.ErrInvalidRequest)
}

func TestNewEstimator_Defaults(t *testing.T) {
	e := NewEstimator(0, 0, 0)
	assert.Equal(t, "1", e.Rate(ModeNormal, Escalation{}).String())
	assert.Equal(t, "1.5", e.Rate(ModeEscalated, Escalation{}).String())
}
