package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
)

// FakeGroup is a group the fake platform knows about. Messages are newest first.
type FakeGroup struct {
	Chat         platform.Chat
	Handle       string
	InviteHash   string
	Messages     []platform.Message
	Role         platform.Role
	Participants []platform.Participant
}

type SentMessage struct {
	ChatID int64
	Text   string
}

// FakeClient is an in-memory platform.Client for one identity.
type FakeClient struct {
	mu       sync.Mutex
	groups   []*FakeGroup
	me       platform.Participant
	joined   map[int64]bool
	failures map[string]error
	calls    map[string]int
	sent     []SentMessage
	kicked   []int64
}

func NewFakeClient(me platform.Participant, groups ...*FakeGroup) *FakeClient {
	return &FakeClient{
		groups:   groups,
		me:       me,
		joined:   make(map[int64]bool),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailOn makes every call of method return err.
func (f *FakeClient) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

func (f *FakeClient) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeClient) IsMember(chatID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined[chatID]
}

// MarkMember makes the identity a member of chatID without a join call.
func (f *FakeClient) MarkMember(chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined[chatID] = true
}

func (f *FakeClient) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

func (f *FakeClient) Kicked() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.kicked...)
}

func (f *FakeClient) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	err := f.failures[method]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (f *FakeClient) byRef(ref platform.GroupRef) *FakeGroup {
	for _, g := range f.groups {
		if ref.Kind == platform.RefInvite && g.InviteHash != "" && g.InviteHash == ref.InviteHash {
			return g
		}
		if ref.Kind == platform.RefHandle && g.Handle != "" && strings.EqualFold(g.Handle, ref.Handle) {
			return g
		}
	}
	return nil
}

func (f *FakeClient) byID(id int64) *FakeGroup {
	for _, g := range f.groups {
		if g.Chat.ID == id {
			return g
		}
	}
	return nil
}

func (f *FakeClient) Join(ctx context.Context, ref platform.GroupRef) (*platform.Chat, error) {
	if err := f.enter(ctx, "Join"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.byRef(ref)
	if g == nil {
		if ref.Kind == platform.RefInvite {
			return nil, errors.New("INVITE_HASH_EXPIRED")
		}
		return nil, errors.New("USERNAME_NOT_OCCUPIED")
	}
	if f.joined[g.Chat.ID] {
		return nil, platform.ErrAlreadyParticipant
	}
	f.joined[g.Chat.ID] = true
	chat := g.Chat
	return &chat, nil
}

func (f *FakeClient) Leave(ctx context.Context, chatID int64) error {
	if err := f.enter(ctx, "Leave"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.joined, chatID)
	return nil
}

func (f *FakeClient) Resolve(ctx context.Context, identifier string) (*platform.Chat, error) {
	if err := f.enter(ctx, "Resolve"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, err := platform.ParseGroupRef(identifier)
	if err != nil {
		return nil, platform.ErrNotFound
	}
	g := f.byRef(ref)
	if g == nil {
		return nil, platform.ErrNotFound
	}
	chat := g.Chat
	return &chat, nil
}

func (f *FakeClient) FetchMessages(ctx context.Context, chatID int64, q platform.MessageQuery) ([]platform.Message, error) {
	if err := f.enter(ctx, "FetchMessages"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.byID(chatID)
	if g == nil {
		return nil, platform.ErrNotFound
	}
	msgs := append([]platform.Message(nil), g.Messages...)
	if q.Order == platform.OldestFirst {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	if q.Limit > 0 && len(msgs) > q.Limit {
		msgs = msgs[:q.Limit]
	}
	return msgs, nil
}

func (f *FakeClient) GetOwnRole(ctx context.Context, chatID int64) (platform.Role, error) {
	if err := f.enter(ctx, "GetOwnRole"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.byID(chatID)
	if g == nil || !f.joined[chatID] {
		return platform.RoleNone, nil
	}
	if g.Role == "" {
		return platform.RoleMember, nil
	}
	return g.Role, nil
}

func (f *FakeClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := f.enter(ctx, "SendMessage"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, SentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *FakeClient) ListOpenConversations(ctx context.Context) ([]platform.Chat, error) {
	if err := f.enter(ctx, "ListOpenConversations"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []platform.Chat
	for _, g := range f.groups {
		if f.joined[g.Chat.ID] {
			out = append(out, g.Chat)
		}
	}
	return out, nil
}

func (f *FakeClient) ListParticipants(ctx context.Context, chatID int64, limit int) ([]platform.Participant, error) {
	if err := f.enter(ctx, "ListParticipants"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.byID(chatID)
	if g == nil {
		return nil, platform.ErrNotFound
	}
	out := append([]platform.Participant{f.me}, g.Participants...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeClient) KickParticipant(ctx context.Context, chatID int64, userID int64) error {
	if err := f.enter(ctx, "KickParticipant"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = append(f.kicked, userID)
	return nil
}

func (f *FakeClient) Self(ctx context.Context) (platform.Participant, error) {
	if err := f.enter(ctx, "Self"); err != nil {
		return platform.Participant{}, err
	}
	return f.me, nil
}

var _ platform.Client = (*FakeClient)(nil)
