package verification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ArafathHabib/telegpbuyer2/internal/config"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
	"github.com/ArafathHabib/telegpbuyer2/internal/testutil"
)

var supergroup = platform.Chat{ID: 1, Title: "Old friends", Kind: platform.KindSupergroup}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func intPtr(i int) *int { return &i }

func TestDecide_YearMismatch(t *testing.T) {
	f := Facts{Chat: supergroup, History: testutil.History(date(2022, time.May, 1), 5)}

	v := Decide(f, Requirements{Year: 2023}, config.DefaultKeywords())

	assert.False(t, v.OK)
	assert.Equal(t, model.ReasonYearMismatch, v.Reason)
	assert.Contains(t, v.Log, "ERROR: Group started in 2022, required 2023")
}

func TestDecide_MonthMismatch(t *testing.T) {
	f := Facts{Chat: supergroup, History: testutil.History(date(2023, time.May, 1), 5)}

	v := Decide(f, Requirements{Year: 2023, Month: intPtr(6)}, config.DefaultKeywords())
	assert.Equal(t, model.ReasonMonthMismatch, v.Reason)

	v = Decide(f, Requirements{Year: 2023, Month: intPtr(5)}, config.DefaultKeywords())
	assert.True(t, v.OK, v.Log)
}

func TestDecide_IsDeterministic(t *testing.T) {
	f := Facts{Chat: supergroup, History: testutil.History(date(2021, time.March, 3), 40)}
	req := Requirements{Year: 2021}
	kw := config.DefaultKeywords()

	first := Decide(f, req, kw)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Decide(f, req, kw))
	}
}

func TestDecide_ChatKind(t *testing.T) {
	kw := config.DefaultKeywords()
	hist := testutil.History(date(2021, time.March, 3), 3)

	v := Decide(Facts{Chat: platform.Chat{Kind: platform.KindBasicGroup}, History: hist}, Requirements{Year: 2021}, kw)
	assert.Equal(t, model.ReasonNotSupergroup, v.Reason)

	v = Decide(Facts{Chat: platform.Chat{Kind: platform.KindChannel}, History: hist}, Requirements{Year: 2021}, kw)
	assert.Equal(t, model.ReasonNotMegagroup, v.Reason)
}

func TestDecide_Location(t *testing.T) {
	chat := supergroup
	chat.Location = &platform.GeoLocation{Lat: 1.5, Long: 2.5}

	v := Decide(Facts{Chat: chat}, Requirements{Year: 2021}, config.DefaultKeywords())
	assert.Equal(t, model.ReasonLocationBased, v.Reason)
}

func TestDecide_NoHistory(t *testing.T) {
	v := Decide(Facts{Chat: supergroup}, Requirements{Year: 2021}, config.DefaultKeywords())
	assert.Equal(t, model.ReasonNoMessageHistory, v.Reason)
}

func TestDecide_ImportMarkers(t *testing.T) {
	cases := map[string]*platform.Forward{
		"imported flag": {Imported: true},
		"saved peer":    {SavedFromPeer: true},
		"hidden origin": {FromName: "Someone"},
	}
	for name, fwd := range cases {
		t.Run(name, func(t *testing.T) {
			hist := testutil.History(date(2021, time.March, 3), 10)
			hist[4].Forward = fwd
			v := Decide(Facts{Chat: supergroup, History: hist}, Requirements{Year: 2021}, config.DefaultKeywords())
			assert.Equal(t, model.ReasonImported, v.Reason)
		})
	}

	hist := testutil.History(date(2021, time.March, 3), 10)
	hist[0].Forward = &platform.Forward{FromName: "Visible", FromID: 42}
	v := Decide(Facts{Chat: supergroup, History: hist}, Requirements{Year: 2021}, config.DefaultKeywords())
	assert.True(t, v.OK, "forward with a known origin is not an import marker")

	hist[1].Text = "Chat History Imported from WhatsApp"
	v = Decide(Facts{Chat: supergroup, History: hist}, Requirements{Year: 2021}, config.DefaultKeywords())
	assert.Equal(t, model.ReasonImported, v.Reason)
}

func TestDecide_EmojiSpam(t *testing.T) {
	hist := testutil.History(date(2021, time.March, 3), 10)
	var first []platform.Message
	for i := 0; i < 6; i++ {
		first = append(first, platform.Message{SenderID: int64(i + 1), Text: "🔥🔥", Date: date(2021, time.March, 3)})
	}

	v := Decide(Facts{Chat: supergroup, History: hist, FirstMessages: first}, Requirements{Year: 2021}, config.DefaultKeywords())
	assert.Equal(t, model.ReasonEmojiSpam, v.Reason)

	// Exactly the threshold passes, and later emoji messages of a known sender do not count.
	first = first[:5]
	first = append(first, platform.Message{SenderID: 99, Text: "hi all"}, platform.Message{SenderID: 99, Text: "😀"})
	v = Decide(Facts{Chat: supergroup, History: hist, FirstMessages: first}, Requirements{Year: 2021}, config.DefaultKeywords())
	assert.True(t, v.OK, v.Log)
}

func TestDecide_Crypto(t *testing.T) {
	hist := testutil.History(date(2021, time.March, 3), 10)

	chat := supergroup
	chat.About = "Daily AIRDROP signals"
	v := Decide(Facts{Chat: chat, History: hist}, Requirements{Year: 2021}, config.DefaultKeywords())
	assert.Equal(t, model.ReasonCryptoRelated, v.Reason)

	hist[2].Text = "buy usdt now"
	v = Decide(Facts{Chat: supergroup, History: hist}, Requirements{Year: 2021}, config.DefaultKeywords())
	assert.Equal(t, model.ReasonCryptoRelated, v.Reason)
}

func TestDecide_MemberActivity(t *testing.T) {
	kw := config.DefaultKeywords()

	hist := testutil.History(date(2021, time.March, 3), 120)
	for i := 0; i < 51; i++ {
		hist[i].Text = "Bob joined the group"
	}
	v := Decide(Facts{Chat: supergroup, History: hist}, Requirements{Year: 2021}, kw)
	assert.Equal(t, model.ReasonExcessiveAdditions, v.Reason)

	hist = testutil.History(date(2021, time.March, 3), 120)
	for i := 0; i < 51; i++ {
		hist[i].Text = "Alice was kicked"
	}
	v = Decide(Facts{Chat: supergroup, History: hist}, Requirements{Year: 2021}, kw)
	assert.Equal(t, model.ReasonExcessiveRemovals, v.Reason)

	hist = testutil.History(date(2021, time.March, 3), 120)
	for i := 0; i < 50; i++ {
		hist[i].Text = "Alice was kicked"
	}
	v = Decide(Facts{Chat: supergroup, History: hist}, Requirements{Year: 2021}, kw)
	assert.True(t, v.OK, "threshold itself is allowed")
}

func TestIsOnlyEmoji(t *testing.T) {
	assert.True(t, isOnlyEmoji("😀"))
	assert.True(t, isOnlyEmoji(" 👍 🎉 "))
	assert.False(t, isOnlyEmoji("ok 👍"))
	assert.False(t, isOnlyEmoji(""))
	assert.False(t, isOnlyEmoji("   "))
}
