package errno

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how the pipeline reacts to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation 请求或 post-condition 格式错误，在任何网络请求之前拒绝
	KindValidation
	// KindStateUnavailable nonce/余额/合约接口获取失败或仍在进行中，可重试
	KindStateUnavailable
	// KindPolicyViolation 余额不足、精度、未授权，需要用户修改输入
	KindPolicyViolation
	// KindSigningFailed 序列化或签名内部错误，会话必须重新开始
	KindSigningFailed
	// KindBroadcastFailed 节点拒绝交易，可通过调整 fee/nonce 重新提交
	KindBroadcastFailed
	// KindCommunicationLost 广播结果无法回传给来源，交易可能已经成功
	KindCommunicationLost
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindStateUnavailable:
		return "StateUnavailable"
	case KindPolicyViolation:
		return "PolicyViolation"
	case KindSigningFailed:
		return "SigningFailed"
	case KindBroadcastFailed:
		return "BroadcastFailed"
	case KindCommunicationLost:
		return "CommunicationLost"
	default:
		return "Unknown"
	}
}

// Errno defines the error code logic
type Errno struct {
	Code    int
	Kind    Kind
	Message string

	cause error
}

func (e *Errno) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Errno) Unwrap() error {
	return e.cause
}

// Is matches any Errno carrying the same code, so wrapped copies still satisfy
// errors.Is against the package-level values.
func (e *Errno) Is(target error) bool {
	var t *Errno
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Errno) Wrap(err error) *Errno {
	return &Errno{Code: e.Code, Kind: e.Kind, Message: e.Message, cause: err}
}

// WithMessage returns a copy of e with a more specific message.
func (e *Errno) WithMessage(format string, args ...any) *Errno {
	return &Errno{Code: e.Code, Kind: e.Kind, Message: fmt.Sprintf(format, args...), cause: e.cause}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed *Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Error()
	}
	return InternalServerError.Code, err.Error()
}

// KindOf reports the category of err, KindUnknown when err is not an Errno.
func KindOf(err error) Kind {
	var typed *Errno
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}

// Retryable reports whether the pipeline may retry the failed stage on its own.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStateUnavailable, KindBroadcastFailed:
		return true
	default:
		return false
	}
}

// Common Errors
var (
	OK                  = &Errno{Code: 0, Message: "Success"}
	InternalServerError = &Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = &Errno{Code: 10002, Kind: KindValidation, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = &Errno{Code: 10004, Message: "Database error"}
	ErrNotFound         = &Errno{Code: 10005, Message: "Resource not found"}
)

// Validation errors (30000+)
var (
	ErrInvalidRequest             = &Errno{Code: 30001, Kind: KindValidation, Message: "Invalid transaction request"}
	ErrMalformedPostCondition     = &Errno{Code: 30002, Kind: KindValidation, Message: "Malformed post-condition"}
	ErrUnsupportedTransactionType = &Errno{Code: 30003, Kind: KindValidation, Message: "Unsupported transaction type"}
	ErrInvalidAddress             = &Errno{Code: 30004, Kind: KindValidation, Message: "The address you provided is not valid"}
	ErrMemoExceedsLimit           = &Errno{Code: 30005, Kind: KindValidation, Message: "Memo must be less than 34-bytes"}
	ErrTooMuchPrecision           = &Errno{Code: 30006, Kind: KindValidation, Message: "Amount can only have 0 decimals"}
	ErrMalformedTransaction       = &Errno{Code: 30007, Kind: KindValidation, Message: "Malformed transaction"}
	ErrInvalidClarityValue        = &Errno{Code: 30008, Kind: KindValidation, Message: "Invalid Clarity value"}
)

// State errors (40000+)
var (
	ErrNoActiveAccount    = &Errno{Code: 40001, Kind: KindStateUnavailable, Message: "No active account"}
	ErrNetworkUnresolved  = &Errno{Code: 40002, Kind: KindStateUnavailable, Message: "Network could not be resolved"}
	ErrNonceUnavailable   = &Errno{Code: 40003, Kind: KindStateUnavailable, Message: "Account nonce unavailable"}
	ErrBalanceUnavailable = &Errno{Code: 40004, Kind: KindStateUnavailable, Message: "Account balance unavailable"}
	ErrStagePending       = &Errno{Code: 40005, Kind: KindStateUnavailable, Message: "Transaction data is still loading"}
	ErrSessionBusy        = &Errno{Code: 40006, Kind: KindStateUnavailable, Message: "Another signing session is in progress"}
	ErrNodeUnavailable    = &Errno{Code: 40007, Kind: KindStateUnavailable, Message: "Node request failed"}
)

// Policy errors (50000+)
var (
	ErrUnauthorized                 = &Errno{Code: 50001, Kind: KindPolicyViolation, Message: "Unauthorized request"}
	ErrGeneric                      = &Errno{Code: 50002, Kind: KindPolicyViolation, Message: "Something went wrong"}
	ErrNoContract                   = &Errno{Code: 50003, Kind: KindPolicyViolation, Message: "Contract not found"}
	ErrStxTransferInsufficientFunds = &Errno{Code: 50004, Kind: KindPolicyViolation, Message: "Insufficient balance"}
	ErrFeeInsufficientFunds         = &Errno{Code: 50005, Kind: KindPolicyViolation, Message: "Insufficient balance"}
	ErrSessionClosed                = &Errno{Code: 50006, Kind: KindPolicyViolation, Message: "Signing session already finished"}
)

// Signing / broadcast errors (60000+)
var (
	ErrSigningFailed     = &Errno{Code: 60001, Kind: KindSigningFailed, Message: "Transaction signing failed"}
	ErrBroadcastFailed   = &Errno{Code: 60002, Kind: KindBroadcastFailed, Message: "Broadcast error"}
	ErrCommunicationLost = &Errno{Code: 60003, Kind: KindCommunicationLost, Message: "Your transaction was broadcasted, but we lost communication with the app you started with."}
)
