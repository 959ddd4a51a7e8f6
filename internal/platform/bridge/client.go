// Package bridge talks to the platform gateway sidecar, which holds the MTProto
// sessions and exposes each one as a small JSON-over-HTTP API.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
)

// Gateway error codes mapped onto platform errors.
const (
	codeAlreadyParticipant = "USER_ALREADY_PARTICIPANT"
	codeNotFound           = "NOT_FOUND"
)

// Error is a failure reported by the gateway.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Client is one session's connection through the gateway.
type Client struct {
	baseURL   string
	sessionID int64
	http      *http.Client
}

// Dial attaches sessionText to the gateway under sessionID and returns the
// connection.
func Dial(ctx context.Context, baseURL string, sessionID int64, sessionText string, hc *http.Client) (*Client, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), sessionID: sessionID, http: hc}
	if err := c.call(ctx, "connect", map[string]string{"session": sessionText}, nil); err != nil {
		return nil, fmt.Errorf("connect session %d: %w", sessionID, err)
	}
	return c, nil
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/sessions/%d/%s", c.baseURL, c.sessionID, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: status %d: %w", method, resp.StatusCode, err)
	}
	if env.Error != nil {
		env.Error.Status = resp.StatusCode
		return mapError(env.Error)
	}
	if resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func mapError(e *Error) error {
	switch e.Code {
	case codeAlreadyParticipant:
		return fmt.Errorf("%w: %s", platform.ErrAlreadyParticipant, e.Error())
	case codeNotFound:
		return fmt.Errorf("%w: %s", platform.ErrNotFound, e.Error())
	}
	return e
}

func (c *Client) Join(ctx context.Context, ref platform.GroupRef) (*platform.Chat, error) {
	var chat *platform.Chat
	err := c.call(ctx, "join", map[string]string{"link": ref.Raw}, &chat)
	return chat, err
}

func (c *Client) Leave(ctx context.Context, chatID int64) error {
	return c.call(ctx, "leave", map[string]int64{"chat_id": chatID}, nil)
}

func (c *Client) Resolve(ctx context.Context, identifier string) (*platform.Chat, error) {
	var chat *platform.Chat
	err := c.call(ctx, "resolve", map[string]string{"identifier": identifier}, &chat)
	return chat, err
}

func (c *Client) FetchMessages(ctx context.Context, chatID int64, q platform.MessageQuery) ([]platform.Message, error) {
	var msgs []platform.Message
	err := c.call(ctx, "messages", struct {
		ChatID int64 `json:"chat_id"`
		platform.MessageQuery
	}{chatID, q}, &msgs)
	return msgs, err
}

func (c *Client) GetOwnRole(ctx context.Context, chatID int64) (platform.Role, error) {
	var out struct {
		Role platform.Role `json:"role"`
	}
	if err := c.call(ctx, "role", map[string]int64{"chat_id": chatID}, &out); err != nil {
		return "", err
	}
	return out.Role, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.call(ctx, "send", struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}{chatID, text}, nil)
}

func (c *Client) ListOpenConversations(ctx context.Context) ([]platform.Chat, error) {
	var chats []platform.Chat
	err := c.call(ctx, "dialogs", struct{}{}, &chats)
	return chats, err
}

func (c *Client) ListParticipants(ctx context.Context, chatID int64, limit int) ([]platform.Participant, error) {
	var out []platform.Participant
	err := c.call(ctx, "participants", struct {
		ChatID int64 `json:"chat_id"`
		Limit  int   `json:"limit"`
	}{chatID, limit}, &out)
	return out, err
}

func (c *Client) KickParticipant(ctx context.Context, chatID int64, userID int64) error {
	return c.call(ctx, "kick", map[string]int64{"chat_id": chatID, "user_id": userID}, nil)
}

func (c *Client) Self(ctx context.Context) (platform.Participant, error) {
	var me platform.Participant
	err := c.call(ctx, "me", struct{}{}, &me)
	return me, err
}

// Close detaches the session from the gateway.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.call(ctx, "disconnect", struct{}{}, nil)
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

var _ platform.Client = (*Client)(nil)

// NewDialer returns a function that dials stored sessions through the gateway
// at baseURL, for use with session.Pool.Load.
func NewDialer(baseURL string, hc *http.Client) func(ctx context.Context, s *model.Session) (platform.Client, error) {
	return func(ctx context.Context, s *model.Session) (platform.Client, error) {
		return Dial(ctx, baseURL, s.ID, s.SessionText, hc)
	}
}
