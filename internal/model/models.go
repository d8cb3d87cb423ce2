package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 会话阶段
const (
	StageOpened    = "opened"
	StagePrepared  = "prepared"
	StageSigned    = "signed"
	StageBroadcast = "broadcast"
	StageFeeBumped = "fee_bumped"
	StageCancelled = "cancelled"
	StageClosed    = "closed"
	StageFailed    = "failed"
)

// SessionEvent 签名会话日志表
// 只追加，不更新: 每次状态变化写一行新记录
type SessionEvent struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string          `gorm:"type:varchar(36);not null;index" json:"session_id"`
	RequestKey string          `gorm:"type:varchar(32);not null;index" json:"request_key"` // origin.Key(token)
	Stage      string          `gorm:"type:varchar(32);not null" json:"stage"`
	Network    string          `gorm:"type:varchar(64)" json:"network"`
	Address    string          `gorm:"type:varchar(64)" json:"address"`
	Nonce      *uint64         `json:"nonce,omitempty"`
	Fee        decimal.Decimal `gorm:"type:decimal(32,0);not null;default:0" json:"fee"`
	TxID       string          `gorm:"type:varchar(64);index" json:"tx_id,omitempty"`
	Status     string          `gorm:"type:varchar(16)" json:"status,omitempty"`
	Detail     string          `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (SessionEvent) TableName() string {
	return "session_events"
}

// AllModels 返回需要迁移的模型
func AllModels() []interface{} {
	return []interface{}{&SessionEvent{}}
}
