package event

// Topic 交易结果回传主题
const TopicTxResponse = "wallet_events_tx_response"

// TxStatus 广播结果
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
	// TxStatusUnknown 超时，交易可能已被节点接收
	TxStatusUnknown TxStatus = "unknown"
)

// TransactionResponseEvent 发送给发起请求的 app tab
// Topic: wallet_events_tx_response
type TransactionResponseEvent struct {
	TabID        string `json:"tab_id"`
	RequestToken string `json:"request_token"`
	// Response 与原始扩展的 txResponse 字段一致: 成功为 {"txId","txRaw"}，取消为字符串
	Response TxResponse `json:"response"`
}

type TxResponse struct {
	Status TxStatus `json:"status,omitempty"`
	TxID   string   `json:"txId,omitempty"`
	TxRaw  string   `json:"txRaw,omitempty"`
	// Error 节点返回的错误内容，原样保留
	Error  any    `json:"error,omitempty"`
	Cancel string `json:"cancel,omitempty"`
}

// CancelMessage 用户取消签名时回传的内容
const CancelMessage = "cancel"
