package session

import (
	"context"
	"time"

	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
)

// timeoutClient bounds every platform call with its own deadline.
type timeoutClient struct {
	next    platform.Client
	timeout time.Duration
}

func withTimeout(c platform.Client, d time.Duration) platform.Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{next: c, timeout: d}
}

func (t *timeoutClient) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.timeout)
}

func (t *timeoutClient) Join(ctx context.Context, ref platform.GroupRef) (*platform.Chat, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.Join(ctx, ref)
}

func (t *timeoutClient) Leave(ctx context.Context, chatID int64) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.Leave(ctx, chatID)
}

func (t *timeoutClient) Resolve(ctx context.Context, identifier string) (*platform.Chat, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.Resolve(ctx, identifier)
}

func (t *timeoutClient) FetchMessages(ctx context.Context, chatID int64, q platform.MessageQuery) ([]platform.Message, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.FetchMessages(ctx, chatID, q)
}

func (t *timeoutClient) GetOwnRole(ctx context.Context, chatID int64) (platform.Role, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.GetOwnRole(ctx, chatID)
}

func (t *timeoutClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.SendMessage(ctx, chatID, text)
}

func (t *timeoutClient) ListOpenConversations(ctx context.Context) ([]platform.Chat, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.ListOpenConversations(ctx)
}

func (t *timeoutClient) ListParticipants(ctx context.Context, chatID int64, limit int) ([]platform.Participant, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.ListParticipants(ctx, chatID, limit)
}

func (t *timeoutClient) KickParticipant(ctx context.Context, chatID int64, userID int64) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.KickParticipant(ctx, chatID, userID)
}

func (t *timeoutClient) Self(ctx context.Context) (platform.Participant, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.Self(ctx)
}

var _ platform.Client = (*timeoutClient)(nil)
