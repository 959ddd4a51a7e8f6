package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
)

// UserHeader carries the authenticated user id, set by the gateway in front.
const UserHeader = "X-User-ID"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	var (
		campaignNF *appErrors.ErrCampaignNotFound
		listingNF  *appErrors.ErrListingNotFound
		userNF     *appErrors.ErrUserNotFound
		ownership  *appErrors.OwnershipVerificationFailure
		verrs      validator.ValidationErrors
	)
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, ve := range verrs {
			fields[ve.Field()] = ve.Tag()
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation_failed", "fields": fields})
	case errors.As(err, &campaignNF), errors.As(err, &listingNF), errors.As(err, &userNF):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, appErrors.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.As(err, &ownership):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "ownership_not_verified", "detail": ownership.Error()})
	case errors.Is(err, appErrors.ErrNotReadyForTransfer), errors.Is(err, appErrors.ErrTerminalStatus):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		logger.WithError(err).Error("❌ request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
	return id, err == nil && id > 0
}

func pathID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}
