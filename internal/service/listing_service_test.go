package service_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
	"github.com/ArafathHabib/telegpbuyer2/internal/service"
	"github.com/ArafathHabib/telegpbuyer2/internal/testutil"
)

func TestSubmitListing_PricedFromCampaign(t *testing.T) {
	h := newHarness(t)
	l := h.submit("  https://t.me/some_group  ")

	assert.Equal(t, model.ListingPending, l.Status)
	assert.Equal(t, "https://t.me/some_group", l.GroupLink)
	assert.True(t, l.Price.Equal(h.campaign.Price))
	assert.Equal(t, model.ListingPending, h.store.Listing(l.ID).Status)
}

func TestSubmitListing_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.listings.SubmitListing(t.Context(), service.SubmitListingRequest{UserID: h.seller.ID, CampaignID: h.campaign.ID})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "GroupLink", verrs[0].Field())

	_, err = h.listings.SubmitListing(t.Context(), service.SubmitListingRequest{
		UserID: h.seller.ID, CampaignID: 999999, GroupLink: "https://t.me/x",
	})
	var notFound *appErrors.ErrCampaignNotFound
	assert.ErrorAs(t, err, &notFound)

	_, err = h.listings.SubmitListing(t.Context(), service.SubmitListingRequest{
		UserID: 999999, CampaignID: h.campaign.ID, GroupLink: "https://t.me/x",
	})
	var noUser *appErrors.ErrUserNotFound
	assert.ErrorAs(t, err, &noUser)
}

func TestQueryStatus_ShowsReceiverOnlyWhileReady(t *testing.T) {
	h := newHarness(t)
	group := testutil.HealthyGroup(60, "status_group", firstMessage)
	group.Role = platform.RoleCreator
	l, _, _ := readyListing(t, h, group)

	view, err := h.listings.QueryStatus(t.Context(), h.seller.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingReadyForTransfer, view.Status)
	assert.Equal(t, "@receiver_a", view.Receiver)
	assert.Contains(t, view.Log, "All checks passed!")

	res, err := h.listings.ConfirmTransfer(t.Context(), h.seller.ID, l.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.CreditedAmount.Equal(h.campaign.Price))

	view, err = h.listings.QueryStatus(t.Context(), h.seller.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingSold, view.Status)
	assert.Empty(t, view.Receiver)
}

func TestQueryStatus_FailedListingShowsReason(t *testing.T) {
	h := newHarness(t)
	h.addChecker("checker_a")
	l := h.submit("https://t.me/addlist/abc")
	h.runOnce()

	view, err := h.listings.QueryStatus(t.Context(), h.seller.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingFailed, view.Status)
	assert.Equal(t, model.ReasonFolderLink, view.Reason)
	assert.Empty(t, view.Receiver)
}

func TestListingService_OtherUsersListing(t *testing.T) {
	h := newHarness(t)
	l := h.submit("https://t.me/mine")
	stranger := h.store.AddUser(&model.User{Username: "stranger"})

	_, err := h.listings.QueryStatus(t.Context(), stranger.ID, l.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotOwner)

	_, err = h.listings.ConfirmTransfer(t.Context(), stranger.ID, l.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotOwner)
}

func TestConfirmTransfer_NotReady(t *testing.T) {
	h := newHarness(t)
	l := h.submit("https://t.me/mine")

	_, err := h.listings.ConfirmTransfer(t.Context(), h.seller.ID, l.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotReadyForTransfer)
}
