package campaign

import (
	"context"
	"errors"
	"time"

	"bringitback-controlplane/pkg/db/option"

	"gorm.io/gorm"
)

// transitions is the single source of legal status changes. FUNDED belongs to
// fixed-goal campaigns and has no way in under flexible funding.
var transitions = map[Status][]Status{
	StatusDraft:  {StatusActive, StatusCancelled},
	StatusActive: {StatusCompleted, StatusCancelled, StatusExpired},
}

// adminTargets are the statuses an administrator may set by hand.
// COMPLETED is entered only from the vote acceptance path, see MarkCompleted.
var adminTargets = map[Status]bool{
	StatusCancelled: true,
	StatusExpired:   true,
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Lock loads the campaign with a row lock inside tx. It returns ErrCampaignNotFound
// when the row does not exist.
func Lock(ctx context.Context, tx *gorm.DB, id string) (*Campaign, error) {
	var c Campaign
	err := tx.WithContext(ctx).Scopes(option.LockingUpdate).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Transition moves a campaign from -> to as a compare-and-set. It returns
// ErrInvalidTransition when the table forbids it or the row is no longer in from.
func Transition(ctx context.Context, tx *gorm.DB, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}

	updates := map[string]any{"status": to, "updated_at": time.Now()}
	switch to {
	case StatusActive:
		updates["published_at"] = time.Now()
	case StatusCompleted, StatusCancelled, StatusExpired:
		updates["closed_at"] = time.Now()
	}

	res := tx.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// MarkCompleted closes an ACTIVE campaign once one of its solutions is accepted.
// It must run in the same transaction as the acceptance.
func MarkCompleted(ctx context.Context, tx *gorm.DB, id string) error {
	return Transition(ctx, tx, id, StatusActive, StatusCompleted)
}
