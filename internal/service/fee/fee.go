// Package fee computes transaction fees in micro-STX.
package fee

import (
	"math"

	"github.com/shopspring/decimal"

	"wallet-pipeline/pkg/config"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/monitor"
)

const (
	DefaultRate              = 1 // micro-STX per byte
	DefaultBumpMultiplier    = 1.5
	HighFeeWarningMultiplier = 4
)

var maxMicro = decimal.NewFromUint64(math.MaxUint64)

type Mode int

const (
	ModeNormal Mode = iota
	// ModeEscalated 用于 replace-by-fee
	ModeEscalated
)

// Escalation is the user's replace-by-fee choice. When UseCustom is false the
// configured multiplier applies.
type Escalation struct {
	UseCustom        bool
	CustomMultiplier decimal.Decimal
}

type Source string

const (
	SourceDefault   Source = "default"
	SourceCustom    Source = "custom"
	SourceSponsored Source = "sponsored"
)

// ResolvedFee is the fee the origin pays. HighFeeWarning is advisory only.
type ResolvedFee struct {
	Amount         decimal.Decimal
	IsSponsored    bool
	HighFeeWarning bool
	Source         Source
}

// Micro returns the amount as integral micro-STX.
func (f ResolvedFee) Micro() (uint64, error) {
	return ToMicro(f.Amount)
}

type Estimator struct {
	rate              decimal.Decimal
	bumpMultiplier    decimal.Decimal
	warningMultiplier decimal.Decimal
}

func NewEstimator(rate int64, bumpMultiplier float64, warningMultiplier int64) *Estimator {
	if rate <= 0 {
		rate = DefaultRate
	}
	if bumpMultiplier <= 1 {
		bumpMultiplier = DefaultBumpMultiplier
	}
	if warningMultiplier <= 0 {
		warningMultiplier = HighFeeWarningMultiplier
	}
	return &Estimator{
		rate:              decimal.NewFromInt(rate),
		bumpMultiplier:    decimal.NewFromFloat(bumpMultiplier),
		warningMultiplier: decimal.NewFromInt(warningMultiplier),
	}
}

func FromConfig(c config.FeeConfig) *Estimator {
	return NewEstimator(c.Rate, c.BumpMultiplier, c.WarningMultiplier)
}

// DefaultFee is rate × byteLength.
func DefaultFee(rate decimal.Decimal, byteLength int) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(int64(byteLength)))
}

// Rate returns the per-byte rate for mode. The escalated rate scales the
// network base rate, never a custom absolute fee.
func (e *Estimator) Rate(mode Mode, esc Escalation) decimal.Decimal {
	if mode != ModeEscalated {
		return e.rate
	}
	multiplier := e.bumpMultiplier
	if esc.UseCustom && esc.CustomMultiplier.GreaterThan(decimal.Zero) {
		multiplier = esc.CustomMultiplier
	}
	return e.rate.Mul(multiplier)
}

func (e *Estimator) DefaultFee(byteLength int) decimal.Decimal {
	return DefaultFee(e.rate, byteLength)
}

// Resolve picks the fee for the initial signing: zero when sponsored, the
// request's custom fee when present, otherwise the default.
func (e *Estimator) Resolve(defaultFee decimal.Decimal, customFee *decimal.Decimal, sponsored bool) (ResolvedFee, error) {
	var res ResolvedFee
	switch {
	case sponsored:
		res = ResolvedFee{Amount: decimal.Zero, IsSponsored: true, Source: SourceSponsored}
	case customFee != nil:
		if _, err := ToMicro(*customFee); err != nil {
			return ResolvedFee{}, err
		}
		res = ResolvedFee{
			Amount:         *customFee,
			Source:         SourceCustom,
			HighFeeWarning: customFee.GreaterThan(defaultFee.Mul(e.warningMultiplier)),
		}
	default:
		res = ResolvedFee{Amount: defaultFee.Ceil(), Source: SourceDefault}
	}
	monitor.FeeMicroSTX.WithLabelValues(string(res.Source)).Observe(res.Amount.InexactFloat64())
	return res, nil
}

// Bump computes a replace-by-fee amount for a transaction of byteLength bytes.
// The result is always strictly greater than previousFee.
func (e *Estimator) Bump(previousFee uint64, byteLength int, esc Escalation) (ResolvedFee, error) {
	prev := decimal.NewFromUint64(previousFee)
	bumped := DefaultFee(e.Rate(ModeEscalated, esc), byteLength).Ceil()
	if floor := prev.Add(decimal.NewFromInt(1)); bumped.LessThan(floor) {
		bumped = floor
	}
	if bumped.GreaterThan(maxMicro) {
		return ResolvedFee{}, errno.ErrInvalidRequest.WithMessage("fee exceeds the maximum representable amount")
	}
	monitor.FeeMicroSTX.WithLabelValues("bump").Observe(bumped.InexactFloat64())
	return ResolvedFee{Amount: bumped, Source: SourceDefault}, nil
}

// ToMicro converts an amount to integral micro-units.
func ToMicro(d decimal.Decimal) (uint64, error) {
	if !d.IsInteger() {
		return 0, errno.ErrTooMuchPrecision
	}
	if d.IsNegative() || d.GreaterThan(maxMicro) {
		return 0, errno.ErrInvalidRequest.WithMessage("amount %s is out of range", d.String())
	}
	return d.BigInt().Uint64(), nil
}
