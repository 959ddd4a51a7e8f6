package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ArafathHabib/telegpbuyer2/internal/logging"
	"github.com/ArafathHabib/telegpbuyer2/internal/metrics"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/repository"
)

// Pool selects sessions from the store and retires them on failure.
type Pool struct {
	Sessions repository.SessionRepositoryInterface
	Registry *Registry
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

func NewPool(sessions repository.SessionRepositoryInterface, registry *Registry, logger logrus.FieldLogger) *Pool {
	return &Pool{Sessions: sessions, Registry: registry, Logger: logger, Now: time.Now}
}

// AcquireChecker returns the least recently used ready checker, or nil.
func (p *Pool) AcquireChecker(ctx context.Context) (*model.Session, error) {
	return p.Sessions.AcquireChecker(ctx, p.Now().UTC())
}

// AcquireReceiver reserves a slot on the next eligible receiver, or returns nil.
func (p *Pool) AcquireReceiver(ctx context.Context, limit int) (*model.Session, error) {
	s, err := p.Sessions.AcquireReceiver(ctx, limit)
	if err != nil {
		return nil, err
	}
	metrics.RecordReceiverAssignment(s != nil)
	return s, nil
}

func (p *Pool) ReleaseReceiver(ctx context.Context, id int64) error {
	return p.Sessions.ReleaseReceiver(ctx, id)
}

func (p *Pool) MarkUsed(ctx context.Context, id int64) error {
	return p.Sessions.MarkUsed(ctx, id, p.Now().UTC())
}

// MarkFailed retires s permanently and drops its connection.
func (p *Pool) MarkFailed(ctx context.Context, s *model.Session, cause error) error {
	p.Registry.Deregister(s.ID)
	if err := p.Sessions.MarkFailed(ctx, s.ID, p.Now().UTC()); err != nil {
		logging.LogError(p.Logger, "session", "MarkFailed", "persist failed status", s.ID, err)
		return err
	}
	metrics.RecordSessionRetired(s.Role)
	fields := logrus.Fields{"session_id": s.ID, "role": s.Role, "username": s.Username}
	if cause != nil {
		fields["cause"] = cause.Error()
	}
	p.Logger.WithFields(fields).Warn("⚠️ session retired")
	return nil
}
