// internal/model/user.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID               int64           `db:"id" json:"id"`
	Username         string          `db:"username" json:"username"`
	TelegramUsername string          `db:"telegram_username" json:"telegram_username"`
	Balance          decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
