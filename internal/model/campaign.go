// internal/model/campaign.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Campaign is a priced offer bucket sellers submit groups against.
type Campaign struct {
	ID          int64           `db:"id" json:"id"`
	Title       string          `db:"title" json:"title"`
	Year        int             `db:"year" json:"year"`
	Month       *int            `db:"month" json:"month,omitempty"`
	Price       decimal.Decimal `db:"price_usd" json:"price_usd"`
	TargetCount int             `db:"target_count" json:"target_count"`
	SoldCount   int             `db:"sold_count" json:"sold_count"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Progress returns the sold share of the target in whole percent, capped at 100.
func (c *Campaign) Progress() int {
	if c.TargetCount <= 0 {
		return 0
	}
	p := c.SoldCount * 100 / c.TargetCount
	if p > 100 {
		return 100
	}
	return p
}
