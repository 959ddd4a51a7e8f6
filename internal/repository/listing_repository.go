package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
)

// ListingTransition moves one listing from From to To. It fails with
// ErrInvalidTransition when the stored status is not From.
type ListingTransition struct {
	ListingID         int64
	From              model.ListingStatus
	To                model.ListingStatus
	Reason            string
	Log               string
	CheckerSessionID  *int64
	ReceiverSessionID *int64
}

// SaleFinalization is the four-way commit of a confirmed transfer.
type SaleFinalization struct {
	ListingID         int64
	UserID            int64
	CampaignID        int64
	ReceiverSessionID int64
	Price             decimal.Decimal
	TransferredAt     time.Time
}

type ListingRepositoryInterface interface {
	Create(ctx context.Context, l *model.Listing) error
	GetByID(ctx context.Context, id int64) (*model.Listing, error)
	// ClaimOldestPending leases the oldest pending listing nobody else holds
	// a live lease on. Returns nil when there is none.
	ClaimOldestPending(ctx context.Context, owner string, lease time.Duration) (*model.Listing, error)
	ReleaseLease(ctx context.Context, id int64, owner string) error
	Transition(ctx context.Context, t ListingTransition) error
	// FinalizeSale marks the listing sold, credits the owner, bumps the
	// campaign sold count and converts the receiver's reservation into used
	// capacity. All four commit together or not at all.
	FinalizeSale(ctx context.Context, s SaleFinalization) error
}

type ListingRepository struct {
	DB *sql.DB
}

const listingColumns = `id, user_id, campaign_id, group_link, price_usd, status, check_reason, check_log,
        checked_by_session, receiver_session, created_at, transferred_at, included_in_withdrawal`

func scanListing(row interface{ Scan(...any) error }) (*model.Listing, error) {
	var (
		l           model.Listing
		reason      sql.NullString
		checker     sql.NullInt64
		receiver    sql.NullInt64
		transferred sql.NullTime
	)
	err := row.Scan(&l.ID, &l.UserID, &l.CampaignID, &l.GroupLink, &l.Price, &l.Status, &reason, &l.CheckLog,
		&checker, &receiver, &l.CreatedAt, &transferred, &l.IncludedInWithdrawal)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		l.CheckReason = &reason.String
	}
	if checker.Valid {
		l.CheckerSessionID = &checker.Int64
	}
	if receiver.Valid {
		l.ReceiverSessionID = &receiver.Int64
	}
	if transferred.Valid {
		l.TransferredAt = &transferred.Time
	}
	return &l, nil
}

// Create inserts a new pending listing and fills in its ID
func (r *ListingRepository) Create(ctx context.Context, l *model.Listing) error {
	l.CreatedAt = time.Now().UTC()
	if l.Status == "" {
		l.Status = model.ListingPending
	}
	query := `
        INSERT INTO listings (user_id, campaign_id, group_link, price_usd, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query, l.UserID, l.CampaignID, l.GroupLink, l.Price, l.Status, l.CreatedAt).Scan(&l.ID)
}

func (r *ListingRepository) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id=$1`
	l, err := scanListing(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewListingNotFound(id)
		}
		return nil, err
	}
	return l, nil
}

func (r *ListingRepository) ClaimOldestPending(ctx context.Context, owner string, lease time.Duration) (*model.Listing, error) {
	query := `
        UPDATE listings
        SET lease_owner=$1, lease_expires_at=NOW() + $2::bigint * INTERVAL '1 millisecond'
        WHERE id = (
            SELECT id FROM listings
            WHERE status='pending' AND (lease_expires_at IS NULL OR lease_expires_at < NOW())
            ORDER BY created_at, id
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + listingColumns
	l, err := scanListing(r.DB.QueryRowContext(ctx, query, owner, lease.Milliseconds()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

func (r *ListingRepository) ReleaseLease(ctx context.Context, id int64, owner string) error {
	query := `UPDATE listings SET lease_owner=NULL, lease_expires_at=NULL WHERE id=$1 AND lease_owner=$2`
	_, err := r.DB.ExecContext(ctx, query, id, owner)
	return err
}

// Transition applies a status change guarded by the expected current status.
// Session references are only overwritten when set.
func (r *ListingRepository) Transition(ctx context.Context, t ListingTransition) error {
	query := `
        UPDATE listings
        SET status=$1,
            check_reason=NULLIF($2::text, ''),
            check_log=$3,
            checked_by_session=COALESCE($4, checked_by_session),
            receiver_session=COALESCE($5, receiver_session),
            lease_owner=NULL,
            lease_expires_at=NULL
        WHERE id=$6 AND status=$7
    `
	res, err := r.DB.ExecContext(ctx, query, t.To, t.Reason, t.Log,
		nullInt64(t.CheckerSessionID), nullInt64(t.ReceiverSessionID), t.ListingID, t.From)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("listing %d %s -> %s: %w", t.ListingID, t.From, t.To, appErrors.ErrInvalidTransition)
	}
	return nil
}

func (r *ListingRepository) FinalizeSale(ctx context.Context, s SaleFinalization) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
        UPDATE listings SET status='sold', transferred_at=$1
        WHERE id=$2 AND status='ready_for_transfer'
    `, s.TransferredAt, s.ListingID)
	if err != nil {
		return err
	}
	if n, rerr := res.RowsAffected(); rerr != nil {
		return rerr
	} else if n == 0 {
		return fmt.Errorf("finalize listing %d: %w", s.ListingID, appErrors.ErrNotReadyForTransfer)
	}

	if err = execOne(ctx, tx, `UPDATE users SET balance = balance + $1 WHERE id=$2`,
		s.Price, s.UserID); err != nil {
		return fmt.Errorf("credit user %d: %w", s.UserID, err)
	}
	if err = execOne(ctx, tx, `UPDATE campaigns SET sold_count = sold_count + 1 WHERE id=$1`,
		s.CampaignID); err != nil {
		return fmt.Errorf("bump campaign %d: %w", s.CampaignID, err)
	}
	if err = execOne(ctx, tx, `
        UPDATE sessions
        SET groups_received = groups_received + 1, groups_reserved = GREATEST(groups_reserved - 1, 0)
        WHERE id=$1
    `, s.ReceiverSessionID); err != nil {
		return fmt.Errorf("bump receiver %d: %w", s.ReceiverSessionID, err)
	}
	return tx.Commit()
}

func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row, updated %d", n)
	}
	return nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

var _ ListingRepositoryInterface = (*ListingRepository)(nil)
