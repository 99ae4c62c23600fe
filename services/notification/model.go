package notification

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Type string

const (
	TypeSolutionSubmitted     Type = "SOLUTION_SUBMITTED"
	TypeSolutionAccepted      Type = "SOLUTION_ACCEPTED"
	TypeCampaignCompleted     Type = "CAMPAIGN_COMPLETED"
	TypeContributionConfirmed Type = "CONTRIBUTION_CONFIRMED"
	TypePayoutRequested       Type = "PAYOUT_REQUESTED"
	TypePayoutCompleted       Type = "PAYOUT_COMPLETED"
	TypePayoutFailed          Type = "PAYOUT_FAILED"
)

// Notification is a message for one user. It is persisted by the worker.
type Notification struct {
	ID        string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	UserID    string         `gorm:"column:user_id;type:varchar(64);not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	Type      Type           `gorm:"column:type;type:varchar(40);not null" json:"type"`
	Title     string         `gorm:"column:title;type:varchar(255)" json:"title"`
	Body      string         `gorm:"column:body;type:text" json:"body"`
	Metadata  datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	ReadAt    *time.Time     `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime;index:idx_notifications_user_created,priority:2" json:"created_at"`
}

// Message describes a notification before it is fanned out to recipients.
type Message struct {
	Type     Type
	Title    string
	Body     string
	Metadata map[string]string
}

// For builds one notification per distinct, non-empty recipient.
func For(msg Message, recipients ...string) []*Notification {
	var meta datatypes.JSON
	if len(msg.Metadata) > 0 {
		if b, err := json.Marshal(msg.Metadata); err == nil {
			meta = datatypes.JSON(b)
		}
	}

	seen := make(map[string]struct{}, len(recipients))
	out := make([]*Notification, 0, len(recipients))
	for _, userID := range recipients {
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}

		out = append(out, &Notification{
			UserID:   userID,
			Type:     msg.Type,
			Title:    msg.Title,
			Body:     msg.Body,
			Metadata: meta,
		})
	}
	return out
}
