package request

import "github.com/shopspring/decimal"

type OpenSessionRequest struct {
	Token string `json:"token" binding:"required"`
	TabID string `json:"tab_id"` // 来源 tab，用于回传结果
}

type FeeBumpRequest struct {
	UseCustom  bool            `json:"use_custom"`
	Multiplier decimal.Decimal `json:"multiplier"`
}
