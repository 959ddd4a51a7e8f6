package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/repository"
)

// Store is an in-memory stand-in for the Postgres repositories. One mutex
// covers every table, so each method is atomic the way a transaction is.
type Store struct {
	mu        sync.Mutex
	users     map[int64]*model.User
	campaigns map[int64]*model.Campaign
	listings  map[int64]*model.Listing
	sessions  map[int64]*model.Session
	leases    map[int64]lease
	cursor    *int64
	nextID    int64
	clock     func() time.Time

	// FailFinalizeOn makes FinalizeSale fail at the named step ("user",
	// "campaign", "receiver") after the earlier steps were applied, to check
	// that nothing is kept.
	FailFinalizeOn string
}

type lease struct {
	owner   string
	expires time.Time
}

func NewStore() *Store {
	return &Store{
		users:     make(map[int64]*model.User),
		campaigns: make(map[int64]*model.Campaign),
		listings:  make(map[int64]*model.Listing),
		sessions:  make(map[int64]*model.Session),
		leases:    make(map[int64]lease),
		nextID:    100,
		clock:     time.Now,
	}
}

func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Store) AddUser(u *model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.nextID++
		u.ID = s.nextID
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) AddCampaign(c *model.Campaign) *model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextID++
		c.ID = s.nextID
	}
	s.campaigns[c.ID] = c
	return c
}

func (s *Store) AddSession(sess *model.Session) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == 0 {
		s.nextID++
		sess.ID = s.nextID
	}
	if sess.Status == "" {
		sess.Status = model.SessionReady
	}
	s.sessions[sess.ID] = sess
	return sess
}

// DeleteCampaign simulates an admin removing a campaign.
func (s *Store) DeleteCampaign(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, id)
}

// Listing returns a copy of the stored listing.
func (s *Store) Listing(id int64) model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.listings[id]
}

func (s *Store) Session(id int64) model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sessions[id]
}

func (s *Store) User(id int64) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *Store) Campaign(id int64) model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *Store) Users() repository.UserRepositoryInterface         { return storeUsers{s} }
func (s *Store) Campaigns() repository.CampaignRepositoryInterface { return storeCampaigns{s} }
func (s *Store) Listings() repository.ListingRepositoryInterface   { return storeListings{s} }
func (s *Store) Sessions() repository.SessionRepositoryInterface   { return storeSessions{s} }

type storeUsers struct{ s *Store }

func (r storeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, appErrors.NewUserNotFound(id)
	}
	cp := *u
	return &cp, nil
}

type storeCampaigns struct{ s *Store }

func (r storeCampaigns) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r storeCampaigns) ListCampaigns(_ context.Context, offset, limit int) ([]*model.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]*model.Campaign, 0, len(r.s.campaigns))
	for _, c := range r.s.campaigns {
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type storeListings struct{ s *Store }

func (r storeListings) Create(_ context.Context, l *model.Listing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextID++
	l.ID = r.s.nextID
	l.CreatedAt = r.s.clock().UTC()
	if l.Status == "" {
		l.Status = model.ListingPending
	}
	cp := *l
	r.s.listings[l.ID] = &cp
	return nil
}

func (r storeListings) GetByID(_ context.Context, id int64) (*model.Listing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.listings[id]
	if !ok {
		return nil, appErrors.NewListingNotFound(id)
	}
	cp := *l
	return &cp, nil
}

func (r storeListings) ClaimOldestPending(_ context.Context, owner string, d time.Duration) (*model.Listing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock()
	var oldest *model.Listing
	for _, l := range r.s.listings {
		if l.Status != model.ListingPending {
			continue
		}
		if ls, held := r.s.leases[l.ID]; held && ls.expires.After(now) {
			continue
		}
		if oldest == nil || l.CreatedAt.Before(oldest.CreatedAt) ||
			(l.CreatedAt.Equal(oldest.CreatedAt) && l.ID < oldest.ID) {
			oldest = l
		}
	}
	if oldest == nil {
		return nil, nil
	}
	r.s.leases[oldest.ID] = lease{owner: owner, expires: now.Add(d)}
	cp := *oldest
	return &cp, nil
}

func (r storeListings) ReleaseLease(_ context.Context, id int64, owner string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ls, ok := r.s.leases[id]; ok && ls.owner == owner {
		delete(r.s.leases, id)
	}
	return nil
}

func (r storeListings) Transition(_ context.Context, t repository.ListingTransition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.listings[t.ListingID]
	if !ok {
		return appErrors.NewListingNotFound(t.ListingID)
	}
	if l.Status != t.From {
		return fmt.Errorf("listing %d %s -> %s: %w", t.ListingID, t.From, t.To, appErrors.ErrInvalidTransition)
	}
	l.Status = t.To
	l.CheckReason = nil
	if t.Reason != "" {
		reason := t.Reason
		l.CheckReason = &reason
	}
	l.CheckLog = t.Log
	if t.CheckerSessionID != nil {
		id := *t.CheckerSessionID
		l.CheckerSessionID = &id
	}
	if t.ReceiverSessionID != nil {
		id := *t.ReceiverSessionID
		l.ReceiverSessionID = &id
	}
	delete(r.s.leases, l.ID)
	return nil
}

func (r storeListings) FinalizeSale(_ context.Context, f repository.SaleFinalization) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.listings[f.ListingID]
	if !ok {
		return appErrors.NewListingNotFound(f.ListingID)
	}
	if l.Status != model.ListingReadyForTransfer {
		return fmt.Errorf("finalize listing %d: %w", f.ListingID, appErrors.ErrNotReadyForTransfer)
	}
	u, ok := r.s.users[f.UserID]
	if !ok || r.s.FailFinalizeOn == "user" {
		return fmt.Errorf("credit user %d: %w", f.UserID, errors.New("expected 1 row, updated 0"))
	}
	c, ok := r.s.campaigns[f.CampaignID]
	if !ok || r.s.FailFinalizeOn == "campaign" {
		return fmt.Errorf("bump campaign %d: %w", f.CampaignID, errors.New("expected 1 row, updated 0"))
	}
	recv, ok := r.s.sessions[f.ReceiverSessionID]
	if !ok || r.s.FailFinalizeOn == "receiver" {
		return fmt.Errorf("bump receiver %d: %w", f.ReceiverSessionID, errors.New("expected 1 row, updated 0"))
	}

	// All checks passed, apply everything.
	at := f.TransferredAt
	l.Status = model.ListingSold
	l.TransferredAt = &at
	u.Balance = u.Balance.Add(f.Price)
	c.SoldCount++
	recv.CapacityUsed++
	if recv.Reserved > 0 {
		recv.Reserved--
	}
	return nil
}

type storeSessions struct{ s *Store }

func (r storeSessions) GetByID(_ context.Context, id int64) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, appErrors.NewSessionNotFound(id)
	}
	cp := *sess
	return &cp, nil
}

func (r storeSessions) ListReady(_ context.Context) ([]*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Session{}
	for _, sess := range r.s.sessions {
		if sess.Status == model.SessionReady {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r storeSessions) AcquireChecker(_ context.Context, now time.Time) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var pick *model.Session
	for _, sess := range r.s.sessions {
		if sess.Role != model.RoleChecker || sess.Status != model.SessionReady {
			continue
		}
		if pick == nil || lessRecentlyUsed(sess, pick) {
			pick = sess
		}
	}
	if pick == nil {
		return nil, nil
	}
	at := now
	pick.LastUsedAt = &at
	cp := *pick
	return &cp, nil
}

func lessRecentlyUsed(a, b *model.Session) bool {
	switch {
	case a.LastUsedAt == nil && b.LastUsedAt == nil:
		return a.ID < b.ID
	case a.LastUsedAt == nil:
		return true
	case b.LastUsedAt == nil:
		return false
	case a.LastUsedAt.Equal(*b.LastUsedAt):
		return a.ID < b.ID
	}
	return a.LastUsedAt.Before(*b.LastUsedAt)
}

func (r storeSessions) AcquireReceiver(_ context.Context, limit int) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var eligible []int64
	for _, sess := range r.s.sessions {
		if sess.Role == model.RoleReceiver && sess.Status == model.SessionReady && sess.HasCapacity(limit) {
			eligible = append(eligible, sess.ID)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i] < eligible[j] })
	id, ok := repository.PickReceiver(eligible, r.s.cursor)
	if !ok {
		return nil, nil
	}
	sess := r.s.sessions[id]
	sess.Reserved++
	r.s.cursor = &id
	cp := *sess
	return &cp, nil
}

func (r storeSessions) ReleaseReceiver(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[id]; ok && sess.Reserved > 0 {
		sess.Reserved--
	}
	return nil
}

func (r storeSessions) MarkUsed(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[id]; ok {
		sess.LastUsedAt = &at
	}
	return nil
}

func (r storeSessions) MarkFailed(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return appErrors.NewSessionNotFound(id)
	}
	sess.Status = model.SessionFailed
	sess.LastUsedAt = &at
	return nil
}

// Balance is a convenience for asserting on user credit in tests.
func (s *Store) Balance(userID int64) decimal.Decimal {
	return s.User(userID).Balance
}
