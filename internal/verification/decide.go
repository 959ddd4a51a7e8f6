package verification

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"

	"github.com/ArafathHabib/telegpbuyer2/internal/config"
	"github.com/ArafathHabib/telegpbuyer2/internal/model"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
)

// Sample windows and thresholds of the history heuristics.
const (
	HistoryLimit       = 300
	FirstMessagesLimit = 100
	ImportScanWindow   = 100
	ImportTextWindow   = 50
	CryptoTextWindow   = 20
	ActivityWindow     = 200

	EmojiSpamThreshold = 5
	ActivityThreshold  = 50
)

// Requirements are the campaign constraints a group must meet.
type Requirements struct {
	Year  int
	Month *int
}

// Facts is everything the decision functions look at. History is newest
// first; FirstMessages is oldest first.
type Facts struct {
	Chat          platform.Chat
	History       []platform.Message
	FirstMessages []platform.Message
}

// Verdict is the pipeline result.
type Verdict struct {
	OK     bool
	Reason string
	Log    []string
}

func (v *Verdict) logf(format string, args ...any) {
	v.Log = append(v.Log, fmt.Sprintf(format, args...))
}

func (v *Verdict) reject(reason, format string, args ...any) {
	v.OK = false
	v.Reason = reason
	v.logf("ERROR: "+format, args...)
}

// Decide evaluates every rule over fully gathered facts.
func Decide(f Facts, req Requirements, kw config.Keywords) Verdict {
	v := decideChat(f.Chat)
	if v.Reason != "" {
		return v
	}
	h := decideHistory(f, req, kw)
	h.Log = append(v.Log, h.Log...)
	return h
}

// decideChat runs the rules that only need the resolved chat.
func decideChat(c platform.Chat) Verdict {
	var v Verdict
	switch c.Kind {
	case platform.KindSupergroup:
	case platform.KindChannel:
		v.reject(model.ReasonNotMegagroup, "Must be a supergroup (megagroup), not a channel")
		return v
	default:
		v.reject(model.ReasonNotSupergroup, "Must be a supergroup/channel")
		return v
	}
	v.logf("Group: %s", c.Title)

	if loc := c.Location; loc != nil {
		label := loc.Address
		if label == "" {
			label = fmt.Sprintf("Lat: %v, Lon: %v", loc.Lat, loc.Long)
		}
		v.reject(model.ReasonLocationBased, "Group is location-based (GeoChat): %s", label)
		return v
	}
	v.OK = true
	return v
}

// decideHistory runs the message based rules in order.
func decideHistory(f Facts, req Requirements, kw config.Keywords) Verdict {
	var v Verdict
	msgs := f.History
	if len(msgs) == 0 {
		v.reject(model.ReasonNoMessageHistory, "No message history visible (history hidden for new members)")
		return v
	}
	v.logf("Retrieved %d messages - History visible", len(msgs))

	if imported, why := detectImported(msgs, kw.Imported); imported {
		v.reject(model.ReasonImported, "%s", why)
		return v
	}

	first := msgs[len(msgs)-1].Date.UTC()
	if req.Month != nil {
		v.logf("First message: %s (Year: %d, Month: %d - %s)", first.Format("2006-01-02"), first.Year(), int(first.Month()), first.Month())
	} else {
		v.logf("First message: %s (Year: %d)", first.Format("2006-01-02"), first.Year())
	}
	if first.Year() != req.Year {
		v.reject(model.ReasonYearMismatch, "Group started in %d, required %d", first.Year(), req.Year)
		return v
	}
	if req.Month != nil && int(first.Month()) != *req.Month {
		v.reject(model.ReasonMonthMismatch, "Group started in %s, required %s", first.Month(), monthName(*req.Month))
		return v
	}

	if n := countEmojiFirstMessages(f.FirstMessages); n > EmojiSpamThreshold {
		v.reject(model.ReasonEmojiSpam, "Too many users (%d) have emoji-only first messages", n)
		return v
	}

	if matchesAny(strings.ToLower(f.Chat.About), kw.Crypto) || matchesAny(recentText(msgs, CryptoTextWindow), kw.Crypto) {
		v.reject(model.ReasonCryptoRelated, "Group appears to be crypto-related")
		return v
	}

	added := countMatching(msgs, ActivityWindow, kw.Added)
	v.logf("Member additions: %d messages", added)
	if added > ActivityThreshold {
		v.reject(model.ReasonExcessiveAdditions, "Too many member addition messages")
		return v
	}

	removed := countMatching(msgs, ActivityWindow, kw.Removed)
	v.logf("Member removals: %d messages", removed)
	if removed > ActivityThreshold {
		v.reject(model.ReasonExcessiveRemovals, "Too many member removal messages")
		return v
	}

	v.OK = true
	return v
}

func detectImported(msgs []platform.Message, keywords []string) (bool, string) {
	for _, m := range window(msgs, ImportScanWindow) {
		fwd := m.Forward
		if fwd == nil {
			continue
		}
		if fwd.Imported {
			return true, "Contains messages with 'imported' flag"
		}
		if fwd.SavedFromPeer {
			return true, "Contains messages imported from saved messages"
		}
		if fwd.FromName != "" && fwd.FromID == 0 {
			return true, "Contains forwarded messages from hidden sources"
		}
	}
	for _, m := range window(msgs, ImportTextWindow) {
		text := strings.ToLower(m.Text)
		for _, kw := range keywords {
			if text != "" && strings.Contains(text, kw) {
				return true, fmt.Sprintf("Message text mentions import: '%s'", kw)
			}
		}
	}
	return false, ""
}

// countEmojiFirstMessages counts senders whose first text message is emoji only.
func countEmojiFirstMessages(oldestFirst []platform.Message) int {
	seen := make(map[int64]struct{})
	count := 0
	for _, m := range window(oldestFirst, FirstMessagesLimit) {
		if m.Text == "" || m.SenderID == 0 {
			continue
		}
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		if isOnlyEmoji(m.Text) {
			count++
		}
	}
	return count
}

func isOnlyEmoji(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || !gomoji.ContainsEmoji(text) {
		return false
	}
	return strings.TrimSpace(gomoji.RemoveEmojis(text)) == ""
}

func recentText(msgs []platform.Message, n int) string {
	parts := make([]string, 0, n)
	for _, m := range window(msgs, n) {
		parts = append(parts, strings.ToLower(m.Text))
	}
	return strings.Join(parts, " ")
}

func countMatching(msgs []platform.Message, n int, keywords []string) int {
	count := 0
	for _, m := range window(msgs, n) {
		if matchesAny(strings.ToLower(m.Text), keywords) {
			count++
		}
	}
	return count
}

func matchesAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func window(msgs []platform.Message, n int) []platform.Message {
	if len(msgs) > n {
		return msgs[:n]
	}
	return msgs
}

func monthName(m int) string {
	if m < 1 || m > 12 {
		return fmt.Sprintf("month %d", m)
	}
	return time.Month(m).String()
}
