package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ArafathHabib/telegpbuyer2/internal/config"
	"github.com/ArafathHabib/telegpbuyer2/internal/listing"
	"github.com/ArafathHabib/telegpbuyer2/internal/logging"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
	"github.com/ArafathHabib/telegpbuyer2/internal/queue"
	"github.com/ArafathHabib/telegpbuyer2/internal/service"
	"github.com/ArafathHabib/telegpbuyer2/internal/session"
	"github.com/ArafathHabib/telegpbuyer2/internal/testutil"
	"github.com/ArafathHabib/telegpbuyer2/internal/verification"
)

var (
	firstMessage = time.Date(2021, time.March, 1, 10, 0, 0, 0, time.UTC)
	fixedNow     = time.Date(2024, time.June, 5, 12, 0, 0, 0, time.UTC)
)

// events collects published lifecycle events.
type events struct {
	mu  sync.Mutex
	got []queue.ListingEvent
}

func (e *events) handle(p any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, p.(queue.ListingEvent))
	return nil
}

func (e *events) statuses() []model.ListingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.ListingStatus, len(e.got))
	for i, ev := range e.got {
		out[i] = ev.Status
	}
	return out
}

type harness struct {
	t          *testing.T
	store      *testutil.Store
	registry   *session.Registry
	pool       *session.Pool
	handoff    *service.Handoff
	dispatcher *service.Dispatcher
	listings   *service.ListingService
	events     *events

	seller   *model.User
	campaign *model.Campaign
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testutil.NewStore()
	store.SetClock(func() time.Time { return fixedNow })
	logger := logging.Discard()

	registry := session.NewRegistry(time.Second, logger)
	t.Cleanup(registry.Close)
	pool := session.NewPool(store.Sessions(), registry, logger)
	pool.Now = func() time.Time { return fixedNow }

	ev := &events{}
	q := queue.NewInMemoryQueue(logger)
	for _, topic := range queue.Topics {
		require.NoError(t, q.Subscribe(topic, ev.handle))
	}

	handoff := &service.Handoff{
		Receivers:      pool,
		Connections:    registry,
		Listings:       store.Listings(),
		Campaigns:      store.Campaigns(),
		Users:          store.Users(),
		Queue:          q,
		Logger:         logger,
		CapacityLimit:  10,
		CleanupMembers: true,
		Now:            func() time.Time { return fixedNow },
	}

	pipeline := verification.NewPipeline(config.DefaultKeywords(), logger)
	pipeline.SettleDelay = 0

	dispatcher := &service.Dispatcher{
		Listings:    store.Listings(),
		Campaigns:   store.Campaigns(),
		Checkers:    pool,
		Receivers:   pool,
		Connections: registry,
		Verifier:    pipeline,
		Handoff:     handoff,
		Queue:       q,
		Logger:      logger,
		Policy:      listing.DefaultRetryPolicy(),
		Owner:       "test-worker",
		Lease:       10 * time.Minute,
		Now:         func() time.Time { return fixedNow },
	}

	h := &harness{
		t:          t,
		store:      store,
		registry:   registry,
		pool:       pool,
		handoff:    handoff,
		dispatcher: dispatcher,
		listings:   service.NewListingService(store.Listings(), store.Campaigns(), store.Users(), store.Sessions(), handoff, logger),
		events:     ev,
	}
	h.seller = store.AddUser(&model.User{Username: "seller", TelegramUsername: "seller_tg"})
	h.campaign = store.AddCampaign(&model.Campaign{
		Title:       "2021 groups",
		Year:        2021,
		Price:       decimal.RequireFromString("12.50"),
		TargetCount: 100,
	})
	return h
}

// addChecker registers a ready checker that can see groups.
func (h *harness) addChecker(name string, groups ...*testutil.FakeGroup) (*model.Session, *testutil.FakeClient) {
	s := h.store.AddSession(&model.Session{Role: model.RoleChecker, Username: name})
	c := testutil.NewFakeClient(platform.Participant{ID: 9000 + s.ID, Username: name}, groups...)
	h.registry.Register(s.ID, c)
	return s, c
}

// addReceiver registers a ready receiver with used capacity.
func (h *harness) addReceiver(name string, used int, groups ...*testutil.FakeGroup) (*model.Session, *testutil.FakeClient) {
	s := h.store.AddSession(&model.Session{Role: model.RoleReceiver, Username: name, CapacityUsed: used})
	c := testutil.NewFakeClient(platform.Participant{ID: 9000 + s.ID, Username: name}, groups...)
	h.registry.Register(s.ID, c)
	return s, c
}

func (h *harness) submit(link string) *model.Listing {
	h.t.Helper()
	l, err := h.listings.SubmitListing(h.t.Context(), service.SubmitListingRequest{
		UserID:     h.seller.ID,
		CampaignID: h.campaign.ID,
		GroupLink:  link,
	})
	require.NoError(h.t, err)
	return l
}

func (h *harness) runOnce() service.Outcome {
	h.t.Helper()
	outcome, err := h.dispatcher.RunOnce(h.t.Context())
	require.NoError(h.t, err)
	return outcome
}

// awaitEvents waits for the asynchronous in-memory queue to deliver n events.
func (h *harness) awaitEvents(n int) []model.ListingStatus {
	h.t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := h.events.statuses(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	return h.events.statuses()
}
