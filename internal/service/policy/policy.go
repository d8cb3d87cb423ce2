// Package policy decides whether a prepared transaction may be confirmed.
package policy

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"wallet-pipeline/internal/node"
	"wallet-pipeline/internal/service/fee"
	"wallet-pipeline/internal/service/request"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/monitor"
)

const microPerSTX = 6

// Input is a snapshot of everything the gate looks at. Balance is the
// available micro-STX balance. A contract stage that is ready with a nil
// value means the contract was confirmed absent.
type Input struct {
	Request    *request.SigningRequest
	HasAccount bool
	Balance    Stage[decimal.Decimal]
	Nonce      Stage[uint64]
	Contract   Stage[*node.ContractInterface]
	Fee        *fee.ResolvedFee
}

type Verdict struct {
	Reason     *errno.Errno
	Title      string
	Detail     string
	CanConfirm bool
}

func (v Verdict) Blocked() bool { return v.Reason != nil }

type verdictJSON struct {
	Code       int    `json:"code,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Title      string `json:"title,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CanConfirm bool   `json:"can_confirm"`
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	out := verdictJSON{Title: v.Title, Detail: v.Detail, CanConfirm: v.CanConfirm}
	if v.Reason != nil {
		out.Code = v.Reason.Code
		out.Reason = reasonLabel(v.Reason)
	}
	return json.Marshal(out)
}

// Err returns the blocking reason, or ErrStagePending while a fetch is still
// outstanding, or nil when confirm is allowed.
func (v Verdict) Err() error {
	if v.Reason != nil {
		return v.Reason
	}
	if !v.CanConfirm {
		return errno.ErrStagePending
	}
	return nil
}

// Evaluate applies the checks in precedence order; the first match wins.
func Evaluate(in Input) Verdict {
	reason, detail := firstViolation(in)
	v := Verdict{Reason: reason, Detail: detail}
	if reason != nil {
		v.Title = reason.Message
		monitor.PolicyBlockedTotal.WithLabelValues(reasonLabel(reason)).Inc()
		return v
	}
	v.CanConfirm = settled(in)
	return v
}

func firstViolation(in Input) (*errno.Errno, string) {
	if in.Request != nil && !in.Request.Authorized {
		return errno.ErrUnauthorized, ""
	}
	if in.Request == nil || !in.HasAccount || in.Balance.IsFailed() {
		return errno.ErrGeneric, ""
	}
	if _, ok := in.Request.ContractCall(); ok && contractAbsent(in.Contract) {
		return errno.ErrNoContract, ""
	}
	if !in.Balance.IsReady() {
		return nil, ""
	}
	available := in.Balance.Value
	if tt, ok := in.Request.TokenTransfer(); ok && tt.Amount.GreaterThanOrEqual(available) {
		return errno.ErrStxTransferInsufficientFunds, InsufficientBalanceMessage(available)
	}
	if f := in.Fee; f != nil && !f.IsSponsored && f.Amount.IsPositive() && f.Amount.GreaterThanOrEqual(available) {
		return errno.ErrFeeInsufficientFunds, InsufficientBalanceMessage(available)
	}
	return nil, ""
}

// contractAbsent is true only once loading finished without an interface.
func contractAbsent(s Stage[*node.ContractInterface]) bool {
	switch s.State {
	case StateFailed:
		return true
	case StateReady:
		return s.Value == nil
	default:
		return false
	}
}

func settled(in Input) bool {
	if !in.Balance.IsReady() || !in.Nonce.IsReady() {
		return false
	}
	if _, ok := in.Request.ContractCall(); ok && !in.Contract.IsReady() {
		return false
	}
	return true
}

// InsufficientBalanceMessage formats a micro-STX balance for display.
func InsufficientBalanceMessage(availableMicro decimal.Decimal) string {
	return fmt.Sprintf("Insufficient balance. Your available balance is: %s STX", availableMicro.Shift(-microPerSTX).String())
}

// BroadcastErrorTitle renders a node rejection payload for display.
func BroadcastErrorTitle(payload any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return errno.ErrBroadcastFailed.Message
	}
	return "Broadcast error: " + string(b)
}

func reasonLabel(e *errno.Errno) string {
	switch e.Code {
	case errno.ErrUnauthorized.Code:
		return "unauthorized"
	case errno.ErrNoContract.Code:
		return "no_contract"
	case errno.ErrStxTransferInsufficientFunds.Code:
		return "stx_transfer_insufficient_funds"
	case errno.ErrFeeInsufficientFunds.Code:
		return "fee_insufficient_funds"
	default:
		return "generic"
	}
}
