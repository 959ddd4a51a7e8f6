package verification

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ArafathHabib/telegpbuyer2/internal/config"
	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/metrics"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
)

// Request is one verification job.
type Request struct {
	GroupLink string
	Requirements
}

// Pipeline gathers facts about a candidate group through a checker identity
// and hands them to the decision functions. The checker always leaves the
// group before Run returns.
type Pipeline struct {
	Keywords config.Keywords
	Logger   logrus.FieldLogger
	// SettleDelay is waited after a handle join before resolving the chat.
	SettleDelay time.Duration
}

func NewPipeline(kw config.Keywords, logger logrus.FieldLogger) *Pipeline {
	return &Pipeline{Keywords: kw, Logger: logger, SettleDelay: time.Second}
}

// Run returns a verdict, or a SessionFailure error when the identity itself
// misbehaved. The verdict log is populated in both cases.
func (p *Pipeline) Run(ctx context.Context, c platform.Client, req Request) (v Verdict, err error) {
	start := time.Now()
	defer func() {
		result := v.Reason
		switch {
		case err != nil:
			result = "session_failure"
		case v.OK:
			result = "ok"
		}
		metrics.ObserveVerification(result, time.Since(start))
	}()

	ref, perr := platform.ParseGroupRef(req.GroupLink)
	if ref.Kind == platform.RefFolder {
		v.reject(model.ReasonFolderLink, "Folder links are not supported. Provide individual group links.")
		return v, nil
	}
	if perr != nil {
		v.reject(model.ReasonInvalidLink, "Could not parse invite link")
		return v, nil
	}

	chat, err := p.join(ctx, c, ref, &v)
	if err != nil || chat == nil {
		return v, err
	}
	defer p.leave(ctx, c, chat.ID, &v)

	cv := decideChat(*chat)
	v.Log = append(v.Log, cv.Log...)
	if !cv.OK {
		v.Reason = cv.Reason
		return v, nil
	}

	facts := Facts{Chat: *chat}
	facts.History, err = c.FetchMessages(ctx, chat.ID, platform.MessageQuery{Limit: HistoryLimit, Order: platform.NewestFirst})
	if err != nil {
		return v, p.sessionFailure(&v, "fetch_messages", err)
	}
	if len(facts.History) > 0 {
		facts.FirstMessages, err = c.FetchMessages(ctx, chat.ID, platform.MessageQuery{Limit: FirstMessagesLimit, Order: platform.OldestFirst})
		if err != nil {
			return v, p.sessionFailure(&v, "fetch_first_messages", err)
		}
	}

	hv := decideHistory(facts, req.Requirements, p.Keywords)
	v.Log = append(v.Log, hv.Log...)
	if !hv.OK {
		v.Reason = hv.Reason
		return v, nil
	}

	v.OK = true
	v.logf("All checks passed! Leaving group.")
	return v, nil
}

// join returns the chat, or nil with the verdict set to a rejection, or a
// session failure.
func (p *Pipeline) join(ctx context.Context, c platform.Client, ref platform.GroupRef, v *Verdict) (*platform.Chat, error) {
	if ref.Kind == platform.RefInvite {
		v.logf("Joining via invite: %s", ref.InviteHash)
		chat, err := c.Join(ctx, ref)
		switch {
		case err == nil && chat != nil:
			v.logf("Successfully joined via invite link")
			return chat, nil
		case err == nil:
			v.reject(model.ReasonFailedToGetChat, "Could not get chat after joining")
			return nil, nil
		case errors.Is(err, platform.ErrAlreadyParticipant):
			v.logf("Already a participant, resolving invite")
			return p.resolve(ctx, c, ref, v)
		case isTimeout(err):
			return nil, p.sessionFailure(v, "join", err)
		default:
			v.reject(model.ReasonJoinFailed, "Join failed: %s", truncate(err.Error(), 200))
			return nil, nil
		}
	}

	v.logf("Joining: @%s", ref.Handle)
	joined, err := c.Join(ctx, ref)
	if err != nil {
		if isTimeout(err) {
			return nil, p.sessionFailure(v, "join", err)
		}
		v.logf("Join attempt: %s", truncate(err.Error(), 100))
	} else {
		v.logf("Successfully joined group")
	}

	if p.SettleDelay > 0 {
		select {
		case <-time.After(p.SettleDelay):
		case <-ctx.Done():
			p.leaveJoined(ctx, c, joined, v)
			return nil, p.sessionFailure(v, "join", ctx.Err())
		}
	}
	chat, err := p.resolve(ctx, c, ref, v)
	if chat == nil {
		p.leaveJoined(ctx, c, joined, v)
	}
	return chat, err
}

// leaveJoined leaves a group joined by handle whose chat could not be
// resolved afterwards.
func (p *Pipeline) leaveJoined(ctx context.Context, c platform.Client, joined *platform.Chat, v *Verdict) {
	if joined != nil {
		p.leave(ctx, c, joined.ID, v)
	}
}

func (p *Pipeline) resolve(ctx context.Context, c platform.Client, ref platform.GroupRef, v *Verdict) (*platform.Chat, error) {
	chat, err := c.Resolve(ctx, ref.Identifier())
	switch {
	case errors.Is(err, platform.ErrNotFound) || (err == nil && chat == nil):
		v.reject(model.ReasonFailedToGetChat, "Could not resolve group %s", ref.Identifier())
		return nil, nil
	case err != nil:
		return nil, p.sessionFailure(v, "resolve", err)
	}
	return chat, nil
}

func (p *Pipeline) leave(ctx context.Context, c platform.Client, chatID int64, v *Verdict) {
	if err := c.Leave(context.WithoutCancel(ctx), chatID); err != nil {
		v.logf("Leave failed: %s", truncate(err.Error(), 100))
		p.Logger.WithError(err).WithField("chat_id", chatID).Warn("checker failed to leave group")
	}
}

func (p *Pipeline) sessionFailure(v *Verdict, op string, err error) error {
	v.OK = false
	v.logf("EXCEPTION: %s", truncate(err.Error(), 200))
	return appErrors.NewSessionFailure(op, err)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
