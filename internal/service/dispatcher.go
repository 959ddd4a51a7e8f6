package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/listing"
	"github.com/ArafathHabib/telegpbuyer2/internal/logging"
	"github.com/ArafathHabib/telegpbuyer2/internal/metrics"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
	"github.com/ArafathHabib/telegpbuyer2/internal/queue"
	"github.com/ArafathHabib/telegpbuyer2/internal/repository"
	"github.com/ArafathHabib/telegpbuyer2/internal/verification"
)

// Outcome names how a dispatch cycle ended.
type Outcome string

const (
	OutcomeIdle             Outcome = "idle"
	OutcomeNoCampaign       Outcome = "no_campaign"
	OutcomeNoChecker        Outcome = "no_checker"
	OutcomeRejected         Outcome = "rejected"
	OutcomeNoReceiver       Outcome = "no_receiver"
	OutcomeReadyForTransfer Outcome = "ready_for_transfer"
	OutcomeRetriesExhausted Outcome = "retries_exhausted"
	OutcomeError            Outcome = "error"
)

// Verifier runs the verification pipeline through one checker connection.
type Verifier interface {
	Run(ctx context.Context, c platform.Client, req verification.Request) (verification.Verdict, error)
}

// Joiner is the handoff join step.
type Joiner interface {
	Join(ctx context.Context, groupLink string) (*JoinResult, error)
}

// Dispatcher is the background loop that takes the oldest pending listing
// through verification and receiver assignment.
type Dispatcher struct {
	Listings    repository.ListingRepositoryInterface
	Campaigns   repository.CampaignRepositoryInterface
	Checkers    CheckerPool
	Receivers   ReceiverPool
	Connections ConnectionProvider
	Verifier    Verifier
	Handoff     Joiner
	Queue       queue.Queue
	Logger      logrus.FieldLogger

	Policy listing.RetryPolicy
	// Owner identifies this dispatcher on listing leases.
	Owner string
	Lease time.Duration

	PollInterval     time.Duration
	IdleBackoff      time.Duration
	NoCheckerBackoff time.Duration
	Now              func() time.Time
}

// Run polls until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.Logger.WithField("owner", d.Owner).Info("🚀 dispatcher started")
	for {
		outcome, err := d.RunOnce(ctx)
		if ctx.Err() != nil {
			d.Logger.WithField("owner", d.Owner).Info("dispatcher stopped")
			return nil
		}
		metrics.RecordDispatchCycle(string(outcome))
		if err != nil {
			logging.LogError(d.Logger, "service", "Dispatcher.Run", "dispatch cycle", d.Owner, err)
		}

		wait := d.PollInterval
		switch outcome {
		case OutcomeIdle:
			wait += d.IdleBackoff
		case OutcomeNoChecker:
			wait += d.NoCheckerBackoff
		}
		select {
		case <-ctx.Done():
			d.Logger.WithField("owner", d.Owner).Info("dispatcher stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// RunOnce processes at most one listing.
func (d *Dispatcher) RunOnce(ctx context.Context) (Outcome, error) {
	l, err := d.Listings.ClaimOldestPending(ctx, d.Owner, d.Lease)
	if err != nil {
		return OutcomeError, fmt.Errorf("claim pending listing: %w", err)
	}
	if l == nil {
		return OutcomeIdle, nil
	}
	log := d.Logger.WithFields(logrus.Fields{"listing_id": l.ID, "campaign_id": l.CampaignID})

	campaign, err := d.Campaigns.GetByID(ctx, l.CampaignID)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if !errors.As(err, &notFound) {
			d.release(l, log)
			return OutcomeError, err
		}
		log.Warn("campaign no longer exists")
		dec, _ := listing.Next(d.Policy, l.Status, listing.Event{Kind: listing.EventNoCampaign})
		return d.settle(ctx, l, dec, nil, OutcomeNoCampaign)
	}

	req := verification.Request{
		GroupLink:    l.GroupLink,
		Requirements: verification.Requirements{Year: campaign.Year, Month: campaign.Month},
	}
	c := &cycle{}

	for attempt := 1; ; attempt++ {
		checker, err := d.Checkers.AcquireChecker(ctx)
		if err != nil {
			d.release(l, log)
			return OutcomeError, fmt.Errorf("acquire checker: %w", err)
		}
		if checker == nil {
			log.Info("no available checker sessions, waiting")
			d.release(l, log)
			return OutcomeNoChecker, nil
		}
		log.WithFields(logrus.Fields{"checker_id": checker.ID, "attempt": attempt}).Info("checking listing")
		c.logf("Attempt %d", attempt)

		var verdict verification.Verdict
		runErr := d.Connections.WithConnection(ctx, checker.ID, func(ctx context.Context, pc platform.Client) error {
			var err error
			verdict, err = d.Verifier.Run(ctx, pc, req)
			return err
		})
		c.lines = append(c.lines, verdict.Log...)

		if ctx.Err() != nil {
			d.release(l, log)
			return OutcomeError, ctx.Err()
		}
		if runErr != nil && !appErrors.IsSessionFailure(runErr) {
			d.release(l, log)
			return OutcomeError, runErr
		}

		if runErr != nil {
			if errors.Is(runErr, appErrors.ErrSessionNotRegistered) {
				c.logf("EXCEPTION: checker session not active")
			}
			log.WithField("checker_id", checker.ID).WithError(runErr).Warn("checker session failed")
			dec, err := listing.Next(d.Policy, l.Status, listing.Event{
				Kind: listing.EventSessionFailure, Attempt: attempt, SessionID: checker.ID,
			})
			if err != nil {
				d.release(l, log)
				return OutcomeError, err
			}
			if err := d.Checkers.MarkFailed(ctx, checker, runErr); err != nil {
				log.WithError(err).Warn("could not retire checker")
			}
			if dec.Retry {
				continue
			}
			if dec.Persist(l.Status) {
				return d.settle(ctx, l, dec, c.withChecker(checker.ID), OutcomeRetriesExhausted)
			}
			log.WithField("attempts", attempt).Warn("verification attempts exhausted, listing stays pending")
			d.release(l, log)
			return OutcomeRetriesExhausted, nil
		}

		if err := d.Checkers.MarkUsed(ctx, checker.ID); err != nil {
			log.WithError(err).Warn("could not stamp checker")
		}
		c.checkerID = &checker.ID

		if !verdict.OK {
			dec, _ := listing.Next(d.Policy, l.Status, listing.Event{Kind: listing.EventRejected, Reason: verdict.Reason})
			return d.settle(ctx, l, dec, c, OutcomeRejected)
		}
		return d.handoff(ctx, l, c, log)
	}
}

func (d *Dispatcher) handoff(ctx context.Context, l *model.Listing, c *cycle, log logrus.FieldLogger) (Outcome, error) {
	res, err := d.Handoff.Join(ctx, l.GroupLink)
	if err != nil {
		d.release(l, log)
		return OutcomeError, err
	}
	if res.Receiver == nil {
		log.Warn("no receiver available")
		dec, _ := listing.Next(d.Policy, l.Status, listing.Event{Kind: listing.EventNoReceiver})
		return d.settle(ctx, l, dec, c, OutcomeNoReceiver)
	}

	c.receiverID = &res.Receiver.ID
	c.lines = append(c.lines, "", "Receiver join: "+res.Log)
	dec, _ := listing.Next(d.Policy, l.Status, listing.Event{Kind: listing.EventReceiverAssigned, SessionID: res.Receiver.ID})
	outcome, err := d.settle(ctx, l, dec, c, OutcomeReadyForTransfer)
	if err != nil && d.Receivers != nil {
		if rerr := d.Receivers.ReleaseReceiver(context.WithoutCancel(ctx), res.Receiver.ID); rerr != nil {
			log.WithError(rerr).Warn("could not release receiver reservation")
		}
	}
	return outcome, err
}

// settle stores the decision and publishes the matching event.
func (d *Dispatcher) settle(ctx context.Context, l *model.Listing, dec listing.Decision, c *cycle, outcome Outcome) (Outcome, error) {
	t := repository.ListingTransition{
		ListingID: l.ID,
		From:      l.Status,
		To:        dec.Status,
		Reason:    dec.Reason,
	}
	if c != nil {
		t.Log = c.String()
		t.CheckerSessionID = c.checkerID
		t.ReceiverSessionID = c.receiverID
	}
	if err := listing.CheckTransition(t.From, t.To); err != nil {
		d.release(l, d.Logger)
		return OutcomeError, err
	}
	if err := d.Listings.Transition(ctx, t); err != nil {
		logging.LogError(d.Logger, "service", "Dispatcher.settle", "persist transition", t.ListingID, err)
		d.release(l, d.Logger)
		return OutcomeError, err
	}

	d.Logger.WithFields(logrus.Fields{
		"listing_id": l.ID,
		"status":     dec.Status,
		"reason":     dec.Reason,
	}).Info("listing updated")
	publish(d.Queue, d.Logger, queue.ListingEvent{
		ListingID:  l.ID,
		UserID:     l.UserID,
		CampaignID: l.CampaignID,
		Status:     dec.Status,
		Reason:     dec.Reason,
		At:         d.now(),
	})
	return outcome, nil
}

func (d *Dispatcher) release(l *model.Listing, log logrus.FieldLogger) {
	if err := d.Listings.ReleaseLease(context.Background(), l.ID, d.Owner); err != nil {
		log.WithError(err).Warn("could not release listing lease")
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// cycle accumulates the audit log and session references of one listing.
type cycle struct {
	lines      []string
	checkerID  *int64
	receiverID *int64
}

func (c *cycle) logf(format string, args ...any) {
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func (c *cycle) withChecker(id int64) *cycle {
	c.checkerID = &id
	return c
}

func (c *cycle) String() string {
	return strings.Join(c.lines, "\n")
}
