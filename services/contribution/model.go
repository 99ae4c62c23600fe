package contribution

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusRefunded  Status = "REFUNDED"
	StatusFailed    Status = "FAILED"
)

// Contribution is one pledge towards a campaign. Only COMPLETED rows count
// towards funding and voting rights.
type Contribution struct {
	ID                   string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CampaignID           string          `gorm:"column:campaign_id;type:varchar(32);not null;index:idx_contributions_campaign_status,priority:1" json:"campaign_id"`
	UserID               string          `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id,omitempty"`
	Amount               decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Status               Status          `gorm:"column:status;type:varchar(20);not null;default:'PENDING';index:idx_contributions_campaign_status,priority:2" json:"status"`
	Anonymous            bool            `gorm:"column:anonymous;not null;default:false" json:"anonymous"`
	Message              string          `gorm:"column:message;type:text" json:"message,omitempty"`
	CorrelationID        string          `gorm:"column:correlation_id;type:varchar(64);not null;uniqueIndex" json:"correlation_id"`
	GatewayToken         string          `gorm:"column:gateway_token;type:varchar(255)" json:"gateway_token,omitempty"`
	RedirectURL          string          `gorm:"column:redirect_url;type:text" json:"redirect_url,omitempty"`
	GatewayTransactionID string          `gorm:"column:gateway_transaction_id;type:varchar(128)" json:"-"`
	GatewayPayload       datatypes.JSON  `gorm:"column:gateway_payload" json:"-"`
	ConfirmedAt          *time.Time      `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	RefundedAt           *time.Time      `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Public strips what other users must not see.
func (c *Contribution) Public() *Contribution {
	out := *c
	if out.Anonymous {
		out.UserID = ""
	}
	out.GatewayToken = ""
	out.RedirectURL = ""
	return &out
}
