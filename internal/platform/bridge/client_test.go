package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
)

// gateway is a scripted stand-in for the sidecar.
func gateway(t *testing.T, routes map[string]func(body map[string]any) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		route, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"no route"}}`))
			return
		}
		status, resp := route(body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func ok(result string) func(map[string]any) (int, string) {
	return func(map[string]any) (int, string) { return http.StatusOK, `{"result":` + result + `}` }
}

func TestDial_SendsSessionText(t *testing.T) {
	var got string
	srv := gateway(t, map[string]func(map[string]any) (int, string){
		"/sessions/7/connect": func(body map[string]any) (int, string) {
			got, _ = body["session"].(string)
			return http.StatusOK, `{"result":null}`
		},
	})

	_, err := Dial(context.Background(), srv.URL+"/", 7, "1BVtsOK4Bu", nil)
	require.NoError(t, err)
	assert.Equal(t, "1BVtsOK4Bu", got)
}

func TestNewDialer_UsesStoredSession(t *testing.T) {
	var got string
	srv := gateway(t, map[string]func(map[string]any) (int, string){
		"/sessions/12/connect": func(body map[string]any) (int, string) {
			got, _ = body["session"].(string)
			return http.StatusOK, `{"result":null}`
		},
	})

	dial := NewDialer(srv.URL, nil)
	c, err := dial(context.Background(), &model.Session{ID: 12, SessionText: "stored"})
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, "stored", got)
}

func TestDial_RejectedSession(t *testing.T) {
	srv := gateway(t, map[string]func(map[string]any) (int, string){
		"/sessions/7/connect": func(map[string]any) (int, string) {
			return http.StatusUnauthorized, `{"error":{"code":"AUTH_KEY_UNREGISTERED","message":"session revoked"}}`
		},
	})

	_, err := Dial(context.Background(), srv.URL, 7, "dead", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_KEY_UNREGISTERED")
}

func TestClient_DecodesResults(t *testing.T) {
	srv := gateway(t, map[string]func(map[string]any) (int, string){
		"/sessions/3/connect": ok(`null`),
		"/sessions/3/resolve": func(body map[string]any) (int, string) {
			assert.Equal(t, "some_group", body["identifier"])
			return http.StatusOK, `{"result":{"id":55,"title":"Some","kind":"supergroup","location":{"address":"Berlin"}}}`
		},
		"/sessions/3/messages": func(body map[string]any) (int, string) {
			assert.Equal(t, "oldest_first", body["order"])
			assert.EqualValues(t, 100, body["limit"])
			return http.StatusOK, `{"result":[{"id":1,"date":"2021-03-01T10:00:00Z","sender_id":9,"text":"hi","forward":{"imported":true}}]}`
		},
		"/sessions/3/role": ok(`{"role":"creator"}`),
		"/sessions/3/me":   ok(`{"id":42,"username":"receiver"}`),
	})
	c, err := Dial(context.Background(), srv.URL, 3, "s", nil)
	require.NoError(t, err)
	ctx := context.Background()

	chat, err := c.Resolve(ctx, "some_group")
	require.NoError(t, err)
	assert.Equal(t, int64(55), chat.ID)
	assert.Equal(t, platform.KindSupergroup, chat.Kind)
	require.NotNil(t, chat.Location)

	msgs, err := c.FetchMessages(ctx, 55, platform.MessageQuery{Limit: 100, Order: platform.OldestFirst})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, time.Date(2021, time.March, 1, 10, 0, 0, 0, time.UTC), msgs[0].Date.UTC())
	require.NotNil(t, msgs[0].Forward)
	assert.True(t, msgs[0].Forward.Imported)

	role, err := c.GetOwnRole(ctx, 55)
	require.NoError(t, err)
	assert.Equal(t, platform.RoleCreator, role)

	me, err := c.Self(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), me.ID)
}

func TestClient_MapsErrors(t *testing.T) {
	srv := gateway(t, map[string]func(map[string]any) (int, string){
		"/sessions/3/connect": ok(`null`),
		"/sessions/3/join": func(map[string]any) (int, string) {
			return http.StatusConflict, `{"error":{"code":"USER_ALREADY_PARTICIPANT"}}`
		},
		"/sessions/3/resolve": func(map[string]any) (int, string) {
			return http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"USERNAME_NOT_OCCUPIED"}}`
		},
		"/sessions/3/send": func(map[string]any) (int, string) {
			return http.StatusTooManyRequests, `{"error":{"code":"FLOOD_WAIT","message":"wait 300 seconds"}}`
		},
		"/sessions/3/leave": func(map[string]any) (int, string) {
			return http.StatusBadGateway, `upstream down`
		},
	})
	c, err := Dial(context.Background(), srv.URL, 3, "s", nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Join(ctx, platform.GroupRef{Raw: "t.me/x"})
	assert.ErrorIs(t, err, platform.ErrAlreadyParticipant)

	_, err = c.Resolve(ctx, "x")
	assert.ErrorIs(t, err, platform.ErrNotFound)

	err = c.SendMessage(ctx, 1, "hello")
	var gw *Error
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, "FLOOD_WAIT", gw.Code)
	assert.Equal(t, http.StatusTooManyRequests, gw.Status)

	err = c.Leave(ctx, 1)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "502"))
}

func TestClient_HonoursContext(t *testing.T) {
	block := make(chan struct{})
	srv := gateway(t, map[string]func(map[string]any) (int, string){
		"/sessions/3/connect": ok(`null`),
		"/sessions/3/dialogs": func(map[string]any) (int, string) {
			<-block
			return http.StatusOK, `{"result":[]}`
		},
	})
	defer close(block)
	c, err := Dial(context.Background(), srv.URL, 3, "s", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.ListOpenConversations(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
