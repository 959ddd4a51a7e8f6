package listing

import (
	"fmt"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
)

// RetryPolicy bounds verification attempts for one listing within one cycle.
type RetryPolicy struct {
	MaxAttempts int
	// FailOnExhausted marks the listing failed with exhausted_retries when
	// every attempt ended in a session failure. When false the listing stays
	// pending for a later cycle.
	FailOnExhausted bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3}
}

type EventKind int

const (
	EventNoCampaign EventKind = iota
	EventNoChecker
	EventSessionFailure
	EventRejected
	EventVerified
	EventNoReceiver
	EventReceiverAssigned
	EventOwnershipVerified
	EventOwnershipRejected
)

func (k EventKind) String() string {
	switch k {
	case EventNoCampaign:
		return "no_campaign"
	case EventNoChecker:
		return "no_checker"
	case EventSessionFailure:
		return "session_failure"
	case EventRejected:
		return "rejected"
	case EventVerified:
		return "verified"
	case EventNoReceiver:
		return "no_receiver"
	case EventReceiverAssigned:
		return "receiver_assigned"
	case EventOwnershipVerified:
		return "ownership_verified"
	case EventOwnershipRejected:
		return "ownership_rejected"
	}
	return "unknown"
}

// Event is what happened to a listing, independent of how it was observed.
type Event struct {
	Kind EventKind
	// Attempt is the 1-based verification attempt the event belongs to.
	Attempt   int
	SessionID int64
	Reason    string
}

// Decision is the outcome of applying an Event to a listing.
type Decision struct {
	Status        model.ListingStatus
	Reason        string
	RetireSession int64
	// Retry asks for another attempt with a fresh checker in the same cycle.
	Retry bool
	// Handoff asks the caller to run the receiver join step.
	Handoff bool
}

// Persist reports whether the decision changes the stored status.
func (d Decision) Persist(current model.ListingStatus) bool {
	return d.Status != current
}

// Next is the pure transition function of the listing lifecycle.
func Next(p RetryPolicy, current model.ListingStatus, ev Event) (Decision, error) {
	if IsTerminal(current) {
		return Decision{}, fmt.Errorf("%w: %s on %s", appErrors.ErrTerminalStatus, ev.Kind, current)
	}

	switch ev.Kind {
	case EventNoCampaign, EventNoChecker, EventSessionFailure, EventRejected,
		EventVerified, EventNoReceiver, EventReceiverAssigned:
		if current != model.ListingPending {
			return Decision{}, fmt.Errorf("%w: %s on %s", appErrors.ErrInvalidTransition, ev.Kind, current)
		}
	case EventOwnershipVerified, EventOwnershipRejected:
		if current != model.ListingReadyForTransfer {
			return Decision{}, fmt.Errorf("%w: %s on %s", appErrors.ErrNotReadyForTransfer, ev.Kind, current)
		}
	}

	switch ev.Kind {
	case EventNoCampaign:
		return Decision{Status: model.ListingFailed, Reason: model.ReasonNoCampaign}, nil
	case EventNoChecker:
		return Decision{Status: model.ListingPending}, nil
	case EventSessionFailure:
		d := Decision{Status: model.ListingPending, RetireSession: ev.SessionID}
		limit := p.MaxAttempts
		if limit < 1 {
			limit = 1
		}
		switch {
		case ev.Attempt < limit:
			d.Retry = true
		case p.FailOnExhausted:
			d.Status = model.ListingFailed
			d.Reason = model.ReasonExhaustedRetries
		}
		return d, nil
	case EventRejected:
		return Decision{Status: model.ListingFailed, Reason: ev.Reason}, nil
	case EventVerified:
		return Decision{Status: model.ListingPending, Handoff: true}, nil
	case EventNoReceiver:
		return Decision{Status: model.ListingFailed, Reason: model.ReasonNoReceiverAvailable}, nil
	case EventReceiverAssigned:
		return Decision{Status: model.ListingReadyForTransfer}, nil
	case EventOwnershipVerified:
		return Decision{Status: model.ListingSold}, nil
	case EventOwnershipRejected:
		return Decision{Status: model.ListingReadyForTransfer, Reason: ev.Reason}, nil
	}
	return Decision{}, fmt.Errorf("%w: unknown event %d", appErrors.ErrInvalidTransition, ev.Kind)
}
