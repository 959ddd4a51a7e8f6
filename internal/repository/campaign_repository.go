package repository

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int) ([]*model.Campaign, int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, title, year, month, price_usd, target_count, sold_count, created_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var (
		c     model.Campaign
		month sql.NullInt32
	)
	if err := row.Scan(&c.ID, &c.Title, &c.Year, &month, &c.Price, &c.TargetCount, &c.SoldCount, &c.CreatedAt); err != nil {
		return nil, err
	}
	if month.Valid {
		m := int(month.Int32)
		c.Month = &m
	}
	return &c, nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

// ListCampaigns returns a page of campaigns, newest first, plus the total count.
func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY id DESC LIMIT $1 OFFSET $2`

	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
