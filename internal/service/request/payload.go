package request

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"wallet-pipeline/internal/network"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/wire"
)

type TxType string

const (
	TxTypeTokenTransfer TxType = "token_transfer"
	TxTypeContractCall  TxType = "contract_call"
	TxTypeSmartContract TxType = "smart_contract"
)

type AppDetails struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type NetworkPayload struct {
	ChainID    uint32 `json:"chainId"`
	CoreAPIURL string `json:"coreApiUrl"`
}

// TransactionPayload is the JSON body of a request token.
type TransactionPayload struct {
	TxType            TxType           `json:"txType" validate:"required,oneof=token_transfer contract_call smart_contract"`
	PublicKey         string           `json:"publicKey" validate:"required,hexadecimal"`
	Network           *NetworkPayload  `json:"network,omitempty"`
	Fee               *decimal.Decimal `json:"fee,omitempty"`
	Sponsored         bool             `json:"sponsored,omitempty"`
	PostConditions    []string         `json:"postConditions,omitempty" validate:"omitempty,dive,hexadecimal"`
	PostConditionMode *int             `json:"postConditionMode,omitempty" validate:"omitempty,oneof=1 2"`
	StxAddress        string           `json:"stxAddress,omitempty"`
	AppDetails        AppDetails       `json:"appDetails"`

	// token_transfer
	Recipient string `json:"recipient,omitempty" validate:"required_if=TxType token_transfer"`
	Amount    string `json:"amount,omitempty" validate:"required_if=TxType token_transfer"`
	Memo      string `json:"memo,omitempty"`

	// contract_call
	ContractAddress string   `json:"contractAddress,omitempty" validate:"required_if=TxType contract_call"`
	ContractName    string   `json:"contractName,omitempty" validate:"required_if=TxType contract_call,required_if=TxType smart_contract,max=128"`
	FunctionName    string   `json:"functionName,omitempty" validate:"required_if=TxType contract_call,max=128"`
	FunctionArgs    []string `json:"functionArgs,omitempty" validate:"omitempty,dive,hexadecimal"`

	// smart_contract
	CodeBody string `json:"codeBody,omitempty" validate:"required_if=TxType smart_contract"`
}

// Details is the type-specific part of a request. Implemented by
// TokenTransfer, ContractCall and SmartContract.
type Details interface {
	TxType() TxType
}

type TokenTransfer struct {
	Recipient string
	Amount    decimal.Decimal // micro-STX
	Memo      string
}

type ContractCall struct {
	ContractAddress string
	ContractName    string
	FunctionName    string
	FunctionArgs    []string // hex serialized Clarity values
}

type SmartContract struct {
	ContractName string
	CodeBody     string
}

func (TokenTransfer) TxType() TxType { return TxTypeTokenTransfer }
func (ContractCall) TxType() TxType  { return TxTypeContractCall }
func (SmartContract) TxType() TxType { return TxTypeSmartContract }

// SigningRequest is a decoded request. It is never modified after Parse.
type SigningRequest struct {
	Token             string
	Authorized        bool
	PublicKey         string
	Network           *network.Requested
	CustomFee         *decimal.Decimal
	Sponsored         bool
	PostConditions    []string
	PostConditionMode wire.PostConditionMode
	StxAddress        string
	AppDetails        AppDetails
	Details           Details
}

// ContractCall returns the contract call details, if any.
func (r *SigningRequest) ContractCall() (ContractCall, bool) {
	cc, ok := r.Details.(ContractCall)
	return cc, ok
}

// TokenTransfer returns the token transfer details, if any.
func (r *SigningRequest) TokenTransfer() (TokenTransfer, bool) {
	tt, ok := r.Details.(TokenTransfer)
	return tt, ok
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误信息使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes the token, validates the payload and checks the signature.
// A bad signature does not fail Parse: the request comes back with
// Authorized=false so the policy can report it.
func Parse(rawToken string) (*SigningRequest, error) {
	tok, err := DecodeToken(rawToken)
	if err != nil {
		return nil, errno.ErrInvalidRequest.Wrap(err)
	}

	var p TransactionPayload
	if err := json.Unmarshal(tok.Payload, &p); err != nil {
		return nil, errno.ErrInvalidRequest.Wrap(err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, errno.ErrInvalidRequest.WithMessage("Invalid transaction request: %s", ValidationMessage(err))
	}

	req := &SigningRequest{
		Token:             rawToken,
		Authorized:        tok.Verify(p.PublicKey) == nil,
		PublicKey:         strings.ToLower(p.PublicKey),
		CustomFee:         p.Fee,
		Sponsored:         p.Sponsored,
		PostConditions:    p.PostConditions,
		PostConditionMode: wire.PostConditionModeDeny,
		StxAddress:        p.StxAddress,
		AppDetails:        p.AppDetails,
	}
	if p.PostConditionMode != nil {
		req.PostConditionMode = wire.PostConditionMode(*p.PostConditionMode)
	}
	if p.Network != nil {
		req.Network = &network.Requested{ChainID: p.Network.ChainID, CoreAPIURL: p.Network.CoreAPIURL}
	}
	if p.Fee != nil && p.Fee.IsNegative() {
		return nil, errno.ErrInvalidRequest.WithMessage("fee must not be negative")
	}

	switch p.TxType {
	case TxTypeTokenTransfer:
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, errno.ErrInvalidRequest.WithMessage("amount %q is not a number", p.Amount)
		}
		req.Details = TokenTransfer{Recipient: p.Recipient, Amount: amount, Memo: p.Memo}
	case TxTypeContractCall:
		req.Details = ContractCall{
			ContractAddress: p.ContractAddress,
			ContractName:    p.ContractName,
			FunctionName:    p.FunctionName,
			FunctionArgs:    p.FunctionArgs,
		}
	case TxTypeSmartContract:
		req.Details = SmartContract{ContractName: p.ContractName, CodeBody: p.CodeBody}
	}
	return req, nil
}

// ValidationMessage turns validator errors into a short readable list.
func ValidationMessage(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", e.Field(), e.Param()))
		case "hexadecimal":
			msgs = append(msgs, fmt.Sprintf("%s must be hex encoded", e.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
