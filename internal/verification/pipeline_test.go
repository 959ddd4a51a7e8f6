package verification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArafathHabib/telegpbuyer2/internal/config"
	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/logging"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
	"github.com/ArafathHabib/telegpbuyer2/internal/testutil"
)

func newPipeline() *Pipeline {
	p := NewPipeline(config.DefaultKeywords(), logging.Discard())
	p.SettleDelay = 0
	return p
}

var checker = platform.Participant{ID: 1, Username: "checker_one"}

func TestPipeline_FolderLinkNeverJoins(t *testing.T) {
	client := testutil.NewFakeClient(checker)

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "https://t.me/addlist/xyz",
		Requirements: Requirements{Year: 2023},
	})

	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.Equal(t, model.ReasonFolderLink, v.Reason)
	assert.Zero(t, client.Calls("Join"))
	assert.Zero(t, client.Calls("Leave"))
}

func TestPipeline_YearMismatchLeavesGroup(t *testing.T) {
	group := testutil.HealthyGroup(10, "old_group", date(2022, time.May, 1))
	client := testutil.NewFakeClient(checker, group)

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "https://t.me/old_group",
		Requirements: Requirements{Year: 2023},
	})

	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.Equal(t, model.ReasonYearMismatch, v.Reason)
	assert.Equal(t, 1, client.Calls("Leave"))
	assert.False(t, client.IsMember(10))
}

func TestPipeline_PassingGroup(t *testing.T) {
	group := testutil.HealthyGroup(11, "good_group", date(2020, time.January, 9))
	client := testutil.NewFakeClient(checker, group)

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "@good_group",
		Requirements: Requirements{Year: 2020, Month: intPtr(1)},
	})

	require.NoError(t, err)
	assert.True(t, v.OK, v.Log)
	assert.Empty(t, v.Reason)
	assert.Equal(t, "All checks passed! Leaving group.", v.Log[len(v.Log)-1])
	assert.False(t, client.IsMember(11))
}

func TestPipeline_HandleJoinErrorIsTolerated(t *testing.T) {
	group := testutil.HealthyGroup(12, "member_group", date(2020, time.January, 9))
	client := testutil.NewFakeClient(checker, group)
	client.MarkMember(12)

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "t.me/member_group",
		Requirements: Requirements{Year: 2020},
	})

	require.NoError(t, err)
	assert.True(t, v.OK, v.Log)
	assert.Contains(t, v.Log, "Join attempt: "+platform.ErrAlreadyParticipant.Error())
}

func TestPipeline_InviteJoinFailureIsTerminal(t *testing.T) {
	client := testutil.NewFakeClient(checker)

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "https://t.me/+expiredHash",
		Requirements: Requirements{Year: 2020},
	})

	require.NoError(t, err)
	assert.Equal(t, model.ReasonJoinFailed, v.Reason)
	assert.Zero(t, client.Calls("Leave"))
}

func TestPipeline_InviteJoin(t *testing.T) {
	group := testutil.HealthyGroup(13, "", date(2020, time.January, 9))
	group.InviteHash = "AbC123"
	client := testutil.NewFakeClient(checker, group)

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "https://t.me/joinchat/AbC123",
		Requirements: Requirements{Year: 2020},
	})

	require.NoError(t, err)
	assert.True(t, v.OK, v.Log)
	assert.Equal(t, "Joining via invite: AbC123", v.Log[0])
	assert.Zero(t, client.Calls("Resolve"))
}

func TestPipeline_UnknownHandle(t *testing.T) {
	client := testutil.NewFakeClient(checker)

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "https://t.me/nobody_here",
		Requirements: Requirements{Year: 2020},
	})

	require.NoError(t, err)
	assert.Equal(t, model.ReasonFailedToGetChat, v.Reason)
}

func TestPipeline_FetchErrorIsSessionFailure(t *testing.T) {
	group := testutil.HealthyGroup(14, "flaky", date(2020, time.January, 9))
	client := testutil.NewFakeClient(checker, group)
	client.FailOn("FetchMessages", errors.New("FLOOD_WAIT_300"))

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "https://t.me/flaky",
		Requirements: Requirements{Year: 2020},
	})

	require.Error(t, err)
	assert.True(t, appErrors.IsSessionFailure(err))
	assert.False(t, v.OK)
	assert.True(t, strings.HasPrefix(v.Log[len(v.Log)-1], "EXCEPTION: FLOOD_WAIT_300"), v.Log)
	assert.Equal(t, 1, client.Calls("Leave"), "checker leaves even when the session errored")
}

func TestPipeline_JoinTimeoutIsSessionFailure(t *testing.T) {
	client := testutil.NewFakeClient(checker)
	client.FailOn("Join", context.DeadlineExceeded)

	_, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "https://t.me/+someHash",
		Requirements: Requirements{Year: 2020},
	})

	assert.True(t, appErrors.IsSessionFailure(err))
}

func TestPipeline_ResolveErrorAfterHandleJoinLeavesGroup(t *testing.T) {
	group := testutil.HealthyGroup(15, "vanishing", date(2020, time.January, 9))
	client := testutil.NewFakeClient(checker, group)
	client.FailOn("Resolve", errors.New("RPC_CALL_FAIL"))

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "https://t.me/vanishing",
		Requirements: Requirements{Year: 2020},
	})

	require.Error(t, err)
	assert.True(t, appErrors.IsSessionFailure(err))
	assert.False(t, v.OK)
	assert.Equal(t, 1, client.Calls("Join"))
	assert.Equal(t, 1, client.Calls("Leave"))
	assert.False(t, client.IsMember(15))
}

func TestPipeline_UnresolvedHandleJoinLeavesGroup(t *testing.T) {
	group := testutil.HealthyGroup(16, "renamed", date(2020, time.January, 9))
	client := testutil.NewFakeClient(checker, group)
	client.FailOn("Resolve", platform.ErrNotFound)

	v, err := newPipeline().Run(context.Background(), client, Request{
		GroupLink:    "@renamed",
		Requirements: Requirements{Year: 2020},
	})

	require.NoError(t, err)
	assert.Equal(t, model.ReasonFailedToGetChat, v.Reason)
	assert.False(t, client.IsMember(16))
}
