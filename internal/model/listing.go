// internal/model/listing.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingPending          ListingStatus = "pending"
	ListingReadyForTransfer ListingStatus = "ready_for_transfer"
	ListingFailed           ListingStatus = "failed"
	ListingSold             ListingStatus = "sold"
)

// Listing is a group submitted for sale against a campaign.
type Listing struct {
	ID                   int64           `db:"id" json:"id"`
	UserID               int64           `db:"user_id" json:"user_id"`
	CampaignID           int64           `db:"campaign_id" json:"campaign_id"`
	GroupLink            string          `db:"group_link" json:"group_link"`
	Price                decimal.Decimal `db:"price_usd" json:"price_usd"`
	Status               ListingStatus   `db:"status" json:"status"`
	CheckReason          *string         `db:"check_reason" json:"check_reason,omitempty"`
	CheckLog             string          `db:"check_log" json:"check_log"`
	CheckerSessionID     *int64          `db:"checked_by_session" json:"-"`
	ReceiverSessionID    *int64          `db:"receiver_session" json:"-"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	TransferredAt        *time.Time      `db:"transferred_at" json:"transferred_at,omitempty"`
	IncludedInWithdrawal bool            `db:"included_in_withdrawal" json:"included_in_withdrawal"`
}

// Reason returns the check reason or "" when none was recorded.
func (l Listing) Reason() string {
	if l.CheckReason == nil {
		return ""
	}
	return *l.CheckReason
}
