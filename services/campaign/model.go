package campaign

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusFunded    Status = "FUNDED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Campaign is a crowdfunding effort to bring back a discontinued product.
// FundingCurrent always equals the sum of its COMPLETED contributions.
type Campaign struct {
	ID             string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Code           string          `gorm:"column:code;type:varchar(32);uniqueIndex" json:"code"`
	Slug           string          `gorm:"column:slug;type:varchar(255);uniqueIndex" json:"slug"`
	CreatorID      string          `gorm:"column:creator_id;type:varchar(64);not null;index" json:"creator_id"`
	Title          string          `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description    string          `gorm:"column:description;type:text" json:"description"`
	ProductName    string          `gorm:"column:product_name;type:varchar(255)" json:"product_name"`
	Status         Status          `gorm:"column:status;type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	FundingCurrent decimal.Decimal `gorm:"column:funding_current;type:decimal(20,2);not null;default:0" json:"funding_current"`
	PublishedAt    *time.Time      `gorm:"column:published_at" json:"published_at,omitempty"`
	ClosedAt       *time.Time      `gorm:"column:closed_at" json:"closed_at,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (c *Campaign) IsActive() bool {
	return c.Status == StatusActive
}
