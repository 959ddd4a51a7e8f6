// internal/service/campaign_service.go
package service

import (
	"context"

	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
}

type CampaignDetails struct {
	model.Campaign
	Progress  int  `json:"progress"`
	Remaining int  `json:"remaining"`
	Open      bool `json:"open"`
}

func NewCampaignDetails(c *model.Campaign) CampaignDetails {
	remaining := c.TargetCount - c.SoldCount
	if remaining < 0 {
		remaining = 0
	}
	return CampaignDetails{Campaign: *c, Progress: c.Progress(), Remaining: remaining, Open: remaining > 0}
}

// ListCampaigns returns one page of campaigns, newest first, with pagination info.
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int) ([]CampaignDetails, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]CampaignDetails, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = NewCampaignDetails(c)
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// GetCampaignDetails fetches a campaign by ID
func (s *CampaignService) GetCampaignDetails(ctx context.Context, id int64) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := NewCampaignDetails(c)
	return &d, nil
}
