package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/repository"
)

// Finalizer is the handoff finalize step.
type Finalizer interface {
	Finalize(ctx context.Context, listingID int64) (*FinalizeResult, error)
}

// ListingService is the boundary used by the HTTP layer.
type ListingService struct {
	Listings  repository.ListingRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Users     repository.UserRepositoryInterface
	Sessions  repository.SessionRepositoryInterface
	Handoff   Finalizer
	Logger    logrus.FieldLogger
	Validate  *validator.Validate
}

func NewListingService(listings repository.ListingRepositoryInterface, campaigns repository.CampaignRepositoryInterface,
	users repository.UserRepositoryInterface, sessions repository.SessionRepositoryInterface,
	handoff Finalizer, logger logrus.FieldLogger) *ListingService {
	return &ListingService{
		Listings:  listings,
		Campaigns: campaigns,
		Users:     users,
		Sessions:  sessions,
		Handoff:   handoff,
		Logger:    logger,
		Validate:  validator.New(),
	}
}

type SubmitListingRequest struct {
	UserID     int64  `json:"user_id" validate:"required,gt=0"`
	CampaignID int64  `json:"campaign_id" validate:"required,gt=0"`
	GroupLink  string `json:"group_link" validate:"required,max=512"`
}

// ListingStatusView is what a seller sees about their listing.
type ListingStatusView struct {
	ListingID int64               `json:"listing_id"`
	Status    model.ListingStatus `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	Log       string              `json:"log"`
	Receiver  string              `json:"receiver,omitempty"`
}

type ConfirmTransferResult struct {
	Success        bool            `json:"success"`
	CreditedAmount decimal.Decimal `json:"credited_amount"`
	MessageSent    bool            `json:"message_sent"`
}

// SubmitListing stores a new pending listing priced at the campaign price.
func (s *ListingService) SubmitListing(ctx context.Context, req SubmitListingRequest) (*model.Listing, error) {
	req.GroupLink = strings.TrimSpace(req.GroupLink)
	if err := s.Validate.Struct(req); err != nil {
		return nil, err
	}
	if _, err := s.Users.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}
	campaign, err := s.Campaigns.GetByID(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}

	l := &model.Listing{
		UserID:     req.UserID,
		CampaignID: campaign.ID,
		GroupLink:  req.GroupLink,
		Price:      campaign.Price,
		Status:     model.ListingPending,
	}
	if err := s.Listings.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	s.Logger.WithFields(logrus.Fields{"listing_id": l.ID, "user_id": l.UserID, "campaign_id": l.CampaignID}).Info("listing submitted")
	return l, nil
}

// QueryStatus returns the seller-facing view of a listing. The receiver
// handle is shown only while the seller has to transfer ownership to it.
func (s *ListingService) QueryStatus(ctx context.Context, userID, listingID int64) (*ListingStatusView, error) {
	l, err := s.owned(ctx, userID, listingID)
	if err != nil {
		return nil, err
	}
	view := &ListingStatusView{
		ListingID: l.ID,
		Status:    l.Status,
		Reason:    l.Reason(),
		Log:       l.CheckLog,
	}
	if l.Status == model.ListingReadyForTransfer && l.ReceiverSessionID != nil {
		receiver, err := s.Sessions.GetByID(ctx, *l.ReceiverSessionID)
		if err != nil {
			return nil, err
		}
		if receiver.Username != "" {
			view.Receiver = "@" + strings.TrimPrefix(receiver.Username, "@")
		}
	}
	return view, nil
}

// ConfirmTransfer runs the finalize step for the seller's listing.
func (s *ListingService) ConfirmTransfer(ctx context.Context, userID, listingID int64) (*ConfirmTransferResult, error) {
	if _, err := s.owned(ctx, userID, listingID); err != nil {
		return nil, err
	}
	res, err := s.Handoff.Finalize(ctx, listingID)
	if err != nil {
		return nil, err
	}
	return &ConfirmTransferResult{Success: true, CreditedAmount: res.CreditedAmount, MessageSent: res.MessageSent}, nil
}

func (s *ListingService) owned(ctx context.Context, userID, listingID int64) (*model.Listing, error) {
	l, err := s.Listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.UserID != userID {
		return nil, appErrors.ErrNotOwner
	}
	return l, nil
}
