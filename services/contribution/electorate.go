package contribution

import (
	"context"

	"gorm.io/gorm"
)

// ElectorateSize counts the distinct users with a COMPLETED contribution to the
// campaign. It is always read live, never cached, so pass the caller's
// transaction to see its own writes.
func ElectorateSize(ctx context.Context, tx *gorm.DB, campaignID string) (int64, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&Contribution{}).
		Where("campaign_id = ? AND status = ?", campaignID, StatusCompleted).
		Distinct("user_id").
		Count(&n).Error
	return n, err
}

// IsContributor reports whether userID belongs to the campaign's electorate.
func IsContributor(ctx context.Context, tx *gorm.DB, campaignID, userID string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&Contribution{}).
		Where("campaign_id = ? AND user_id = ? AND status = ?", campaignID, userID, StatusCompleted).
		Count(&n).Error
	return n > 0, err
}
