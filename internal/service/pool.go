package service

import (
	"context"

	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
	"github.com/ArafathHabib/telegpbuyer2/internal/session"
)

// ConnectionProvider hands out exclusive use of a session's live connection.
type ConnectionProvider interface {
	WithConnection(ctx context.Context, id int64, fn func(ctx context.Context, c platform.Client) error) error
}

// CheckerPool is the part of the session pool the dispatcher needs.
type CheckerPool interface {
	AcquireChecker(ctx context.Context) (*model.Session, error)
	MarkUsed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, s *model.Session, cause error) error
}

// ReceiverPool is the part of the session pool the handoff coordinator needs.
type ReceiverPool interface {
	AcquireReceiver(ctx context.Context, limit int) (*model.Session, error)
	ReleaseReceiver(ctx context.Context, id int64) error
}

var (
	_ ConnectionProvider = (*session.Registry)(nil)
	_ CheckerPool        = (*session.Pool)(nil)
	_ ReceiverPool       = (*session.Pool)(nil)
)
