// Package postcond decodes request post-conditions and re-targets them at the
// signing account.
package postcond

import (
	"fmt"

	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/wire"
)

// Resolve decodes hex post-conditions in order. When declaredSender is set and
// differs from activeAddress, every standard principal equal to the declared
// sender is rewritten to the active address. Without an active account
// (activeAddress empty) nothing is rewritten. The result is never nil.
func Resolve(encoded []string, declaredSender, activeAddress string) ([]wire.PostCondition, error) {
	out := make([]wire.PostCondition, 0, len(encoded))
	if len(encoded) == 0 {
		return out, nil
	}

	var from, to wire.Address
	rewrite := declaredSender != "" && activeAddress != "" && declaredSender != activeAddress
	if rewrite {
		var err error
		if from, err = wire.ParseAddress(declaredSender); err != nil {
			return nil, errno.ErrInvalidAddress.Wrap(fmt.Errorf("stxAddress %q: %w", declaredSender, err))
		}
		if to, err = wire.ParseAddress(activeAddress); err != nil {
			return nil, errno.ErrInvalidAddress.Wrap(fmt.Errorf("active address %q: %w", activeAddress, err))
		}
	}

	for i, h := range encoded {
		pc, err := Decode(h)
		if err != nil {
			return nil, errno.ErrMalformedPostCondition.Wrap(fmt.Errorf("post-condition %d: %w", i, err))
		}
		if rewrite && pc.Principal.Kind == wire.PrincipalStandard && pc.Principal.Address == from {
			pc.Principal.Address = to
		}
		out = append(out, pc)
	}
	return out, nil
}

// Decode parses one hex encoded post-condition.
func Decode(h string) (wire.PostCondition, error) {
	raw, err := wire.DecodeHex(h)
	if err != nil {
		return wire.PostCondition{}, err
	}
	return wire.DecodePostCondition(raw)
}

// Encode serializes post-conditions back to hex, in order.
func Encode(pcs []wire.PostCondition) ([]string, error) {
	out := make([]string, 0, len(pcs))
	for _, pc := range pcs {
		b, err := pc.Encode()
		if err != nil {
			return nil, err
		}
		out = append(out, wire.EncodeHex(b))
	}
	return out, nil
}
