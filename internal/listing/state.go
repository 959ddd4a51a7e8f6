// Package listing holds the listing status contract shared by the dispatcher,
// the handoff coordinator and the HTTP layer.
package listing

import (
	"fmt"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
)

var transitions = map[model.ListingStatus][]model.ListingStatus{
	model.ListingPending:          {model.ListingReadyForTransfer, model.ListingFailed},
	model.ListingReadyForTransfer: {model.ListingSold},
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s model.ListingStatus) bool {
	return s == model.ListingSold || s == model.ListingFailed
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to model.ListingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrTerminalStatus or ErrInvalidTransition when
// from -> to is not allowed.
func CheckTransition(from, to model.ListingStatus) error {
	if IsTerminal(from) {
		return fmt.Errorf("%w: %s -> %s", appErrors.ErrTerminalStatus, from, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", appErrors.ErrInvalidTransition, from, to)
	}
	return nil
}
