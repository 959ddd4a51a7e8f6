package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/service"
)

// ListingAPI is the listing boundary the controller serves.
type ListingAPI interface {
	SubmitListing(ctx context.Context, req service.SubmitListingRequest) (*model.Listing, error)
	QueryStatus(ctx context.Context, userID, listingID int64) (*service.ListingStatusView, error)
	ConfirmTransfer(ctx context.Context, userID, listingID int64) (*service.ConfirmTransferResult, error)
}

type ListingController struct {
	Listings ListingAPI
	Logger   logrus.FieldLogger
}

func (c *ListingController) SubmitListing(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user"})
		return
	}

	var body struct {
		CampaignID int64  `json:"campaign_id"`
		GroupLink  string `json:"group_link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	l, err := c.Listings.SubmitListing(r.Context(), service.SubmitListingRequest{
		UserID:     uid,
		CampaignID: body.CampaignID,
		GroupLink:  body.GroupLink,
	})
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"listing_id": l.ID,
		"status":     l.Status,
		"price_usd":  l.Price,
	})
}

func (c *ListingController) QueryStatus(w http.ResponseWriter, r *http.Request) {
	uid, lid, ok := c.ids(w, r)
	if !ok {
		return
	}
	view, err := c.Listings.QueryStatus(r.Context(), uid, lid)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (c *ListingController) ConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	uid, lid, ok := c.ids(w, r)
	if !ok {
		return
	}
	res, err := c.Listings.ConfirmTransfer(r.Context(), uid, lid)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *ListingController) ids(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	uid, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user"})
		return 0, 0, false
	}
	lid, ok := pathID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid listing id"})
		return 0, 0, false
	}
	return uid, lid, true
}
