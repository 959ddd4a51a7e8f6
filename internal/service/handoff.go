package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/listing"
	"github.com/ArafathHabib/telegpbuyer2/internal/logging"
	"github.com/ArafathHabib/telegpbuyer2/internal/metrics"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
	"github.com/ArafathHabib/telegpbuyer2/internal/queue"
	"github.com/ArafathHabib/telegpbuyer2/internal/repository"
)

// cleanupLimit is how many participants finalize looks at when clearing the group.
const cleanupLimit = 10

// Handoff moves a verified group to one of our receiver identities and, once
// the seller hands over ownership, settles the sale.
type Handoff struct {
	Receivers   ReceiverPool
	Connections ConnectionProvider
	Listings    repository.ListingRepositoryInterface
	Campaigns   repository.CampaignRepositoryInterface
	Users       repository.UserRepositoryInterface
	Queue       queue.Queue
	Logger      logrus.FieldLogger

	CapacityLimit  int
	CleanupMembers bool
	Now            func() time.Time
}

// JoinResult is the outcome of the join step. Receiver is nil when no
// receiver had capacity.
type JoinResult struct {
	Receiver *model.Session
	Log      string
}

// Join reserves a receiver and has it join the group. Join errors are
// recorded in the log but do not fail the step; the seller can still add the
// receiver by hand.
func (h *Handoff) Join(ctx context.Context, groupLink string) (*JoinResult, error) {
	receiver, err := h.Receivers.AcquireReceiver(ctx, h.CapacityLimit)
	if err != nil {
		return nil, fmt.Errorf("acquire receiver: %w", err)
	}
	if receiver == nil {
		return &JoinResult{}, nil
	}

	var joinLog string
	err = h.Connections.WithConnection(ctx, receiver.ID, func(ctx context.Context, c platform.Client) error {
		joinLog = receiverJoin(ctx, c, groupLink)
		return nil
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrSessionNotRegistered) {
			joinLog = "Receiver client not found in active sessions"
		} else {
			joinLog = "Receiver join failed: " + truncate(err.Error(), 100)
		}
		h.Logger.WithField("receiver_id", receiver.ID).WithError(err).Warn("receiver could not join group")
	}

	h.Logger.WithFields(logrus.Fields{"receiver_id": receiver.ID, "join": joinLog}).Info("receiver assigned")
	return &JoinResult{Receiver: receiver, Log: joinLog}, nil
}

func receiverJoin(ctx context.Context, c platform.Client, groupLink string) string {
	ref, err := platform.ParseGroupRef(groupLink)
	if err != nil {
		return "Receiver join failed: " + err.Error()
	}
	_, err = c.Join(ctx, ref)
	switch {
	case err == nil && ref.Kind == platform.RefInvite:
		return "Receiver joined via invite link"
	case err == nil:
		return "Receiver joined @" + ref.Handle
	case errors.Is(err, platform.ErrAlreadyParticipant):
		return "Receiver already in group"
	}
	return "Receiver join failed: " + truncate(err.Error(), 100)
}

// FinalizeResult reports a settled sale.
type FinalizeResult struct {
	ListingID      int64
	CreditedAmount decimal.Decimal
	MessageSent    bool
	MembersRemoved int
}

// Finalize verifies the assigned receiver now owns the group and commits the
// sale. An ownership failure leaves the listing ready_for_transfer.
func (h *Handoff) Finalize(ctx context.Context, listingID int64) (*FinalizeResult, error) {
	res, err := h.finalize(ctx, listingID)
	var ownership *appErrors.OwnershipVerificationFailure
	switch {
	case err == nil:
		metrics.RecordFinalize("sold")
	case errors.As(err, &ownership):
		metrics.RecordFinalize("ownership_failed")
	default:
		metrics.RecordFinalize("error")
	}
	return res, err
}

func (h *Handoff) finalize(ctx context.Context, listingID int64) (*FinalizeResult, error) {
	l, err := h.Listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if _, err := listing.Next(listing.DefaultRetryPolicy(), l.Status, listing.Event{Kind: listing.EventOwnershipVerified}); err != nil {
		return nil, err
	}
	if l.ReceiverSessionID == nil {
		return nil, &appErrors.OwnershipVerificationFailure{ListingID: l.ID, Detail: "no receiver assigned"}
	}
	receiverID := *l.ReceiverSessionID

	campaign, err := h.Campaigns.GetByID(ctx, l.CampaignID)
	if err != nil {
		return nil, err
	}
	seller, err := h.Users.GetByID(ctx, l.UserID)
	if err != nil {
		return nil, err
	}

	log := h.Logger.WithFields(logrus.Fields{"listing_id": l.ID, "receiver_id": receiverID})
	res := &FinalizeResult{ListingID: l.ID, CreditedAmount: l.Price}

	err = h.Connections.WithConnection(ctx, receiverID, func(ctx context.Context, c platform.Client) error {
		chat, err := locateGroup(ctx, c, l.GroupLink)
		if err != nil {
			return h.ownershipFailure(l.ID, err)
		}
		role, err := c.GetOwnRole(ctx, chat.ID)
		if err != nil {
			return h.ownershipFailure(l.ID, fmt.Errorf("could not verify participant status: %w", err))
		}
		if role != platform.RoleCreator {
			decision, _ := listing.Next(listing.DefaultRetryPolicy(), l.Status,
				listing.Event{Kind: listing.EventOwnershipRejected, Reason: string(role)})
			log.WithFields(logrus.Fields{"role": role, "status": decision.Status}).Warn("❌ receiver is not creator")
			return &appErrors.OwnershipVerificationFailure{ListingID: l.ID, Role: string(role)}
		}
		log.Info("✅ ownership verified")

		if h.CleanupMembers {
			res.MembersRemoved = h.removeMembers(ctx, c, chat.ID, log)
		}

		msg := purchaseMessage(campaign.Year, sellerLabel(seller), l.Price, h.now())
		if err := c.SendMessage(ctx, chat.ID, msg); err != nil {
			log.WithError(err).Warn("⚠️ purchase message not sent")
		} else {
			res.MessageSent = true
		}
		return nil
	})
	if err != nil {
		var ownership *appErrors.OwnershipVerificationFailure
		if errors.As(err, &ownership) {
			return nil, err
		}
		return nil, h.ownershipFailure(l.ID, err)
	}

	sale := repository.SaleFinalization{
		ListingID:         l.ID,
		UserID:            l.UserID,
		CampaignID:        l.CampaignID,
		ReceiverSessionID: receiverID,
		Price:             l.Price,
		TransferredAt:     h.now(),
	}
	if err := h.Listings.FinalizeSale(ctx, sale); err != nil {
		logging.LogError(h.Logger, "service", "Finalize", "commit sale", sale, err)
		return nil, fmt.Errorf("finalize listing %d: %w", l.ID, err)
	}

	publish(h.Queue, h.Logger, queue.ListingEvent{
		ListingID:  l.ID,
		UserID:     l.UserID,
		CampaignID: l.CampaignID,
		Status:     model.ListingSold,
		At:         sale.TransferredAt,
	})
	log.WithField("credited", l.Price.String()).Info("💰 listing sold")
	return res, nil
}

func (h *Handoff) ownershipFailure(listingID int64, err error) error {
	detail := err.Error()
	if errors.Is(err, appErrors.ErrSessionNotRegistered) {
		detail = "receiver session not active"
	}
	return &appErrors.OwnershipVerificationFailure{ListingID: listingID, Detail: truncate(detail, 200)}
}

// locateGroup makes sure the receiver is in the group and returns it.
func locateGroup(ctx context.Context, c platform.Client, groupLink string) (*platform.Chat, error) {
	ref, err := platform.ParseGroupRef(groupLink)
	if err != nil {
		return nil, err
	}
	chat, err := c.Join(ctx, ref)
	if err != nil && !errors.Is(err, platform.ErrAlreadyParticipant) {
		return nil, fmt.Errorf("receiver failed to join: %w", err)
	}
	if chat != nil {
		return chat, nil
	}
	chat, err = c.Resolve(ctx, ref.Identifier())
	if err != nil {
		return nil, fmt.Errorf("could not get group entity: %w", err)
	}
	if chat == nil {
		return nil, errors.New("could not get group entity after join attempt")
	}
	return chat, nil
}

// removeMembers kicks everyone but ourselves. Failures are logged and skipped.
func (h *Handoff) removeMembers(ctx context.Context, c platform.Client, chatID int64, log logrus.FieldLogger) int {
	me, err := c.Self(ctx)
	if err != nil {
		log.WithError(err).Warn("⚠️ member cleanup failed")
		return 0
	}
	members, err := c.ListParticipants(ctx, chatID, cleanupLimit)
	if err != nil {
		log.WithError(err).Warn("⚠️ member cleanup failed")
		return 0
	}
	removed := 0
	for _, m := range members {
		if m.ID == me.ID {
			continue
		}
		if err := c.KickParticipant(ctx, chatID, m.ID); err != nil {
			log.WithError(err).WithField("member_id", m.ID).Warn("⚠️ failed to remove member")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.WithField("removed", removed).Info("🧹 cleaned up remaining members")
	}
	return removed
}

func purchaseMessage(year int, seller string, price decimal.Decimal, at time.Time) string {
	return fmt.Sprintf("This group [%d] was purchased from %s at $%s on %s.",
		year, seller, price.StringFixed(2), at.Format("January 02, 2006"))
}

func sellerLabel(u *model.User) string {
	if name := strings.TrimPrefix(strings.TrimSpace(u.TelegramUsername), "@"); name != "" {
		return "@" + name
	}
	return u.Username
}

func (h *Handoff) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// publish emits a lifecycle event. A queue error never undoes a stored change.
func publish(q queue.Queue, logger logrus.FieldLogger, ev queue.ListingEvent) {
	if q == nil {
		return
	}
	topic, ok := queue.TopicFor(ev.Status)
	if !ok {
		return
	}
	if err := q.Publish(topic, ev); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{"topic": topic, "listing_id": ev.ListingID}).Warn("publish listing event")
	}
}
