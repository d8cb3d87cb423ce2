package node

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrContractNotFound 合约接口返回 404
	ErrContractNotFound = errors.New("node: contract not found")
	ErrUnavailable      = errors.New("node: unavailable")
)

// NonceInfo mirrors GET /extended/v1/address/{addr}/nonces.
type NonceInfo struct {
	LastExecutedTxNonce   *uint64  `json:"last_executed_tx_nonce"`
	LastMempoolTxNonce    *uint64  `json:"last_mempool_tx_nonce"`
	PossibleNextNonce     uint64   `json:"possible_next_nonce"`
	DetectedMissingNonces []uint64 `json:"detected_missing_nonces"`
	DetectedMempoolNonces []uint64 `json:"detected_mempool_nonces"`
}

// StxBalance 余额字段在接口中是字符串形式的整数 (micro-STX)
type StxBalance struct {
	Balance       decimal.Decimal `json:"balance"`
	TotalSent     decimal.Decimal `json:"total_sent"`
	TotalReceived decimal.Decimal `json:"total_received"`
	TotalFeesSent decimal.Decimal `json:"total_fees_sent"`
	Locked        decimal.Decimal `json:"locked"`
}

// Available is balance minus locked, never negative.
func (b StxBalance) Available() decimal.Decimal {
	avail := b.Balance.Sub(b.Locked)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

type FungibleTokenBalance struct {
	Balance decimal.Decimal `json:"balance"`
}

type NonFungibleTokenBalance struct {
	Count decimal.Decimal `json:"count"`
}

// AddressBalance mirrors GET /extended/v1/address/{addr}/balances.
type AddressBalance struct {
	STX               StxBalance                         `json:"stx"`
	FungibleTokens    map[string]FungibleTokenBalance    `json:"fungible_tokens"`
	NonFungibleTokens map[string]NonFungibleTokenBalance `json:"non_fungible_tokens"`
}

type ContractFunction struct {
	Name    string          `json:"name"`
	Access  string          `json:"access"`
	Args    json.RawMessage `json:"args"`
	Outputs json.RawMessage `json:"outputs"`
}

// ContractInterface mirrors GET /v2/contracts/interface/{addr}/{name}.
type ContractInterface struct {
	Functions         []ContractFunction `json:"functions"`
	Variables         json.RawMessage    `json:"variables"`
	Maps              json.RawMessage    `json:"maps"`
	FungibleTokens    json.RawMessage    `json:"fungible_tokens"`
	NonFungibleTokens json.RawMessage    `json:"non_fungible_tokens"`
}

// Function looks up a function by name.
func (ci *ContractInterface) Function(name string) (ContractFunction, bool) {
	for _, f := range ci.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return ContractFunction{}, false
}

// RejectedError is a node rejection of a submitted transaction. Body is the
// node's error payload, kept verbatim.
type RejectedError struct {
	StatusCode int
	Body       json.RawMessage
	Reason     string
}

func (e *RejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("node rejected transaction (%d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("node rejected transaction (%d): %s", e.StatusCode, string(e.Body))
}
