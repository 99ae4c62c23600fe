package payout

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Payout is an immutable record of the amounts owed to an accepted solution's
// submitter. Only an administrator moves it out of PENDING.
type Payout struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Code          string          `gorm:"column:code;type:varchar(32);uniqueIndex" json:"code"`
	SolutionID    string          `gorm:"column:solution_id;type:varchar(32);not null;index" json:"solution_id"`
	CampaignID    string          `gorm:"column:campaign_id;type:varchar(32);not null;index" json:"campaign_id"`
	RequesterID   string          `gorm:"column:requester_id;type:varchar(64);not null;index" json:"requester_id"`
	Gross         decimal.Decimal `gorm:"column:gross;type:decimal(20,2);not null" json:"gross"`
	PlatformFee   decimal.Decimal `gorm:"column:platform_fee;type:decimal(20,2);not null" json:"platform_fee"`
	ProcessingFee decimal.Decimal `gorm:"column:processing_fee;type:decimal(20,2);not null" json:"processing_fee"`
	Net           decimal.Decimal `gorm:"column:net;type:decimal(20,2);not null" json:"net"`
	Status        Status          `gorm:"column:status;type:varchar(20);not null;default:'PENDING';index" json:"status"`
	FailureReason string          `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	ProcessedBy   string          `gorm:"column:processed_by;type:varchar(64)" json:"processed_by,omitempty"`
	ProcessedAt   *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"requested_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
