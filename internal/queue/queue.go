package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ArafathHabib/telegpbuyer2/internal/metrics"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
)

// Listing lifecycle topics.
const (
	TopicReadyForTransfer = "listing.ready_for_transfer"
	TopicFailed           = "listing.failed"
	TopicSold             = "listing.sold"
)

// Topics lists every topic the orchestrator publishes on.
var Topics = []string{TopicReadyForTransfer, TopicFailed, TopicSold}

// ListingEvent is published after a listing status change is stored.
type ListingEvent struct {
	ListingID  int64               `json:"listing_id"`
	UserID     int64               `json:"user_id"`
	CampaignID int64               `json:"campaign_id"`
	Status     model.ListingStatus `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	At         time.Time           `json:"at"`
}

// TopicFor maps a stored status to its topic. Pending has none.
func TopicFor(s model.ListingStatus) (string, bool) {
	switch s {
	case model.ListingReadyForTransfer:
		return TopicReadyForTransfer, true
	case model.ListingFailed:
		return TopicFailed, true
	case model.ListingSold:
		return TopicSold, true
	}
	return "", false
}

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue is an in-process queue with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	logger   logrus.FieldLogger
	backoff  time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger logrus.FieldLogger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
		logger:   logger,
		backoff:  500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Payload: payload, MaxRetries: 3}
		go q.processJob(handler, job)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	log := q.logger.WithField("topic", job.Topic)
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			log.Debug("job processed")
			return // ACK
		}

		job.RetryCount++
		log.WithError(err).Warnf("job failed (attempt %d/%d)", job.RetryCount, job.MaxRetries)

		if job.RetryCount > job.MaxRetries {
			log.Errorf("job permanently failed after %d attempts", job.MaxRetries)
			return // No requeue
		}

		// Linear backoff before retry
		time.Sleep(time.Duration(job.RetryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// StartListingEventSubscriber logs and counts every lifecycle event.
func StartListingEventSubscriber(q Queue, logger logrus.FieldLogger) error {
	for _, topic := range Topics {
		topic := topic
		err := q.Subscribe(topic, func(payload any) error {
			var ev ListingEvent
			switch p := payload.(type) {
			case ListingEvent:
				ev = p
			case *ListingEvent:
				ev = *p
			default:
				logger.WithField("topic", topic).Warnf("⚠️ invalid payload type %T, expected ListingEvent", payload)
				return nil // no retry
			}

			metrics.RecordListingEvent(topic)
			logger.WithFields(logrus.Fields{
				"topic":       topic,
				"listing_id":  ev.ListingID,
				"user_id":     ev.UserID,
				"campaign_id": ev.CampaignID,
				"status":      ev.Status,
				"reason":      ev.Reason,
			}).Info("📩 listing event")
			return nil
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}
