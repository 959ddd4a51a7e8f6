// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotRegistered is returned when no live connection is held for a session.
	ErrSessionNotRegistered = errors.New("session has no live connection")
	ErrNotReadyForTransfer  = errors.New("listing not ready for transfer")
	ErrTerminalStatus       = errors.New("listing is in a terminal status")
	ErrInvalidTransition    = errors.New("invalid listing status transition")
	ErrNotOwner             = errors.New("listing belongs to another user")
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int64
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int64) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrListingNotFound struct {
	ListingID int64
}

func (e *ErrListingNotFound) Error() string {
	return fmt.Sprintf("listing with ID %d not found", e.ListingID)
}

func NewListingNotFound(id int64) error {
	return &ErrListingNotFound{ListingID: id}
}

type ErrSessionNotFound struct {
	SessionID int64
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session with ID %d not found", e.SessionID)
}

func NewSessionNotFound(id int64) error {
	return &ErrSessionNotFound{SessionID: id}
}

type ErrUserNotFound struct {
	UserID int64
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user with ID %d not found", e.UserID)
}

func NewUserNotFound(id int64) error {
	return &ErrUserNotFound{UserID: id}
}

// SessionFailure marks an error of the automated identity itself (platform
// error, timeout, ban) as opposed to a policy rejection of the group.
type SessionFailure struct {
	Op  string
	Err error
}

func (e *SessionFailure) Error() string {
	return fmt.Sprintf("session failure during %s: %v", e.Op, e.Err)
}

func (e *SessionFailure) Unwrap() error { return e.Err }

func NewSessionFailure(op string, err error) error {
	return &SessionFailure{Op: op, Err: err}
}

// IsSessionFailure reports whether err should retire the session that produced it.
func IsSessionFailure(err error) bool {
	var sf *SessionFailure
	return errors.As(err, &sf) || errors.Is(err, ErrSessionNotRegistered)
}

// OwnershipVerificationFailure is returned by finalize when the receiver does
// not hold the creator role. The listing stays ready_for_transfer.
type OwnershipVerificationFailure struct {
	ListingID int64
	Role      string
	Detail    string
}

func (e *OwnershipVerificationFailure) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ownership of listing %d not verified: %s", e.ListingID, e.Detail)
	}
	return fmt.Sprintf("ownership of listing %d not verified: receiver is %s, not creator", e.ListingID, e.Role)
}
