package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ArafathHabib/telegpbuyer2/internal/model"
)

var (
	dispatchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegpbuyer_dispatch_cycles_total",
		Help: "Dispatcher cycles by outcome",
	}, []string{"outcome"})

	verificationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegpbuyer_verification_results_total",
		Help: "Verification pipeline results by reason",
	}, []string{"result"})

	verificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "telegpbuyer_verification_duration_seconds",
		Help:    "Wall time of one verification pipeline run",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	sessionsRetired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegpbuyer_sessions_retired_total",
		Help: "Sessions permanently marked failed, by role",
	}, []string{"role"})

	receiverAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegpbuyer_receiver_assignments_total",
		Help: "Receiver acquisition attempts by result",
	}, []string{"result"})

	finalizeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegpbuyer_finalize_total",
		Help: "Transfer confirmations by result",
	}, []string{"result"})

	listingEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegpbuyer_listing_events_total",
		Help: "Listing lifecycle events consumed, by topic",
	}, []string{"topic"})
)

func RecordDispatchCycle(outcome string) {
	dispatchCycles.WithLabelValues(normalizeOutcome(outcome)).Inc()
}

func ObserveVerification(result string, d time.Duration) {
	verificationResults.WithLabelValues(normalizeReason(result)).Inc()
	verificationDuration.Observe(d.Seconds())
}

func RecordSessionRetired(role model.SessionRole) {
	sessionsRetired.WithLabelValues(normalizeRole(role)).Inc()
}

func RecordReceiverAssignment(assigned bool) {
	if assigned {
		receiverAssignments.WithLabelValues("assigned").Inc()
		return
	}
	receiverAssignments.WithLabelValues("none_available").Inc()
}

func RecordFinalize(result string) {
	switch result {
	case "sold", "ownership_failed", "error":
	default:
		result = "unknown"
	}
	finalizeResults.WithLabelValues(result).Inc()
}

func RecordListingEvent(topic string) {
	listingEvents.WithLabelValues(strings.ToLower(strings.TrimSpace(topic))).Inc()
}

func normalizeOutcome(o string) string {
	switch o {
	case "idle", "no_checker", "no_campaign", "rejected", "ready_for_transfer",
		"no_receiver", "retries_exhausted", "error":
		return o
	default:
		return "unknown"
	}
}

func normalizeReason(r string) string {
	switch r {
	case "ok", "session_failure",
		model.ReasonFolderLink, model.ReasonInvalidLink, model.ReasonJoinFailed,
		model.ReasonFailedToGetChat, model.ReasonNotSupergroup, model.ReasonNotMegagroup,
		model.ReasonLocationBased, model.ReasonNoMessageHistory, model.ReasonImported,
		model.ReasonYearMismatch, model.ReasonMonthMismatch, model.ReasonEmojiSpam,
		model.ReasonCryptoRelated, model.ReasonExcessiveAdditions, model.ReasonExcessiveRemovals:
		return r
	default:
		return "unknown"
	}
}

func normalizeRole(r model.SessionRole) string {
	switch r {
	case model.RoleChecker, model.RoleReceiver, model.RoleOutboundRequest, model.RoleOutboundPaid:
		return string(r)
	default:
		return "unknown"
	}
}
