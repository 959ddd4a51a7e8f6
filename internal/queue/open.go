package queue

import (
	"github.com/sirupsen/logrus"
)

// Open returns an AMQP queue when url is set and an in-memory queue otherwise.
// The returned close function is always safe to call.
func Open(url string, logger logrus.FieldLogger) (Queue, func() error, error) {
	if url == "" {
		logger.Info("using in-memory listing event queue")
		return NewInMemoryQueue(logger), func() error { return nil }, nil
	}
	q, err := NewAMQPQueue(url, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("✅ Connected to AMQP broker")
	return q, q.Close, nil
}
