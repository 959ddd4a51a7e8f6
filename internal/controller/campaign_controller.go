// internal/controller/campaign_controller.go
package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ArafathHabib/telegpbuyer2/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Logger          logrus.FieldLogger
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination, // already contains total_count, total_pages, page, page_size
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		return
	}

	campaign, err := c.CampaignService.GetCampaignDetails(r.Context(), id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}
