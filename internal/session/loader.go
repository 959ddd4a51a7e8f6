package session

import (
	"context"
	"io"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
)

// Dialer opens a live connection for a stored session.
type Dialer func(ctx context.Context, s *model.Session) (platform.Client, error)

// Load registers a connection for every ready session with one of roles (all
// roles when none are given) and returns how many were registered. A session
// that cannot be dialed, or whose connection does not answer a Self call, is
// retired.
func (p *Pool) Load(ctx context.Context, dial Dialer, roles ...model.SessionRole) (int, error) {
	ready, err := p.Sessions.ListReady(ctx)
	if err != nil {
		return 0, err
	}
	sessions := ready[:0:0]
	for _, s := range ready {
		if len(roles) == 0 || slices.Contains(roles, s.Role) {
			sessions = append(sessions, s)
		}
	}

	loaded := 0
	for _, s := range sessions {
		c, err := dial(ctx, s)
		if err == nil {
			err = ping(ctx, withTimeout(c, p.Registry.callTimeout))
			if err != nil {
				if closer, ok := c.(io.Closer); ok {
					_ = closer.Close()
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return loaded, ctx.Err()
			}
			_ = p.MarkFailed(ctx, s, err)
			continue
		}
		p.Registry.Register(s.ID, c)
		loaded++
		p.Logger.WithFields(logrus.Fields{"session_id": s.ID, "role": s.Role}).Debug("session registered")
	}

	p.Logger.WithFields(logrus.Fields{"registered": loaded, "ready": len(sessions)}).Info("✅ sessions loaded")
	return loaded, nil
}

func ping(ctx context.Context, c platform.Client) error {
	_, err := c.Self(ctx)
	return err
}
