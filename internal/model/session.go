// internal/model/session.go
package model

import "time"

type SessionRole string

const (
	RoleChecker         SessionRole = "checker"
	RoleReceiver        SessionRole = "receiver"
	RoleOutboundRequest SessionRole = "withdrawal_request"
	RoleOutboundPaid    SessionRole = "withdrawal_paid"
)

type SessionStatus string

const (
	SessionReady  SessionStatus = "ready"
	SessionFailed SessionStatus = "failed"
)

// Session is an automated platform identity under our control.
type Session struct {
	ID           int64         `db:"id" json:"id"`
	Username     string        `db:"username" json:"username"`
	SessionText  string        `db:"session_text" json:"-"`
	Role         SessionRole   `db:"session_type" json:"session_type"`
	Status       SessionStatus `db:"status" json:"status"`
	CapacityUsed int           `db:"groups_received" json:"groups_received"`
	Reserved     int           `db:"groups_reserved" json:"groups_reserved"`
	LastUsedAt   *time.Time    `db:"last_used_at" json:"last_used_at,omitempty"`
	ChannelRef   string        `db:"channel_id" json:"channel_id,omitempty"`
}

// HasCapacity reports whether the receiver can take one more group under limit.
// Reserved slots count against the limit.
func (s *Session) HasCapacity(limit int) bool {
	return s.CapacityUsed+s.Reserved < limit
}
