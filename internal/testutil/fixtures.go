package testutil

import (
	"fmt"
	"time"

	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
)

// History builds n plain messages starting at first, one day apart, returned
// newest first.
func History(first time.Time, n int) []platform.Message {
	msgs := make([]platform.Message, n)
	for i := 0; i < n; i++ {
		msgs[n-1-i] = platform.Message{
			ID:       int64(i + 1),
			Date:     first.AddDate(0, 0, i),
			SenderID: int64(1000 + i%7),
			Text:     fmt.Sprintf("hello number %d", i),
		}
	}
	return msgs
}

// HealthyGroup is a supergroup reachable by handle that passes every check
// for a campaign requiring first.Year().
func HealthyGroup(id int64, handle string, first time.Time) *FakeGroup {
	return &FakeGroup{
		Chat:     platform.Chat{ID: id, Title: "Group " + handle, Kind: platform.KindSupergroup},
		Handle:   handle,
		Messages: History(first, 12),
	}
}
