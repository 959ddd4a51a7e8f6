// Package platform describes the capabilities the orchestrator needs from the
// messaging platform, one Client per automated identity.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyParticipant = errors.New("already a participant")
	ErrNotFound           = errors.New("not found")
)

type ChatKind string

const (
	KindBasicGroup ChatKind = "group"
	KindChannel    ChatKind = "channel"
	KindSupergroup ChatKind = "supergroup"
)

type GeoLocation struct {
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Long    float64 `json:"long,omitempty"`
}

// Chat is a resolved group or channel.
type Chat struct {
	ID       int64        `json:"id"`
	Title    string       `json:"title"`
	About    string       `json:"about,omitempty"`
	Kind     ChatKind     `json:"kind"`
	Location *GeoLocation `json:"location,omitempty"`
}

// Forward carries the forward header of a message.
type Forward struct {
	Imported      bool   `json:"imported,omitempty"`
	SavedFromPeer bool   `json:"saved_from_peer,omitempty"`
	FromName      string `json:"from_name,omitempty"`
	FromID        int64  `json:"from_id,omitempty"`
}

type Message struct {
	ID       int64     `json:"id"`
	Date     time.Time `json:"date"`
	SenderID int64     `json:"sender_id,omitempty"`
	Text     string    `json:"text,omitempty"`
	Forward  *Forward  `json:"forward,omitempty"`
}

type Order string

const (
	NewestFirst Order = "newest_first"
	OldestFirst Order = "oldest_first"
)

type MessageQuery struct {
	Limit int   `json:"limit"`
	Order Order `json:"order"`
}

type Role string

const (
	RoleNone    Role = "none"
	RoleMember  Role = "member"
	RoleAdmin   Role = "admin"
	RoleCreator Role = "creator"
)

type Participant struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Client is the capability surface of one identity. Every call blocks until
// the platform answers or ctx ends.
type Client interface {
	// Join joins the referenced group and returns it when the platform
	// reports the chat. Returns ErrAlreadyParticipant when already a member.
	Join(ctx context.Context, ref GroupRef) (*Chat, error)
	Leave(ctx context.Context, chatID int64) error
	// Resolve accepts a public handle or an invite link.
	Resolve(ctx context.Context, identifier string) (*Chat, error)
	FetchMessages(ctx context.Context, chatID int64, q MessageQuery) ([]Message, error)
	GetOwnRole(ctx context.Context, chatID int64) (Role, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	ListOpenConversations(ctx context.Context) ([]Chat, error)
	ListParticipants(ctx context.Context, chatID int64, limit int) ([]Participant, error)
	KickParticipant(ctx context.Context, chatID int64, userID int64) error
	Self(ctx context.Context) (Participant, error)
}
