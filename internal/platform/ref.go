package platform

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidLink = errors.New("could not parse invite link")

type RefKind int

const (
	RefHandle RefKind = iota
	RefInvite
	RefFolder
)

// GroupRef is a parsed group link.
type GroupRef struct {
	Raw        string  `json:"raw"`
	Kind       RefKind `json:"kind"`
	InviteHash string  `json:"invite_hash,omitempty"`
	Handle     string  `json:"handle,omitempty"`
}

var (
	inviteRe = regexp.MustCompile(`t\.me/(?:joinchat/|\+)([a-zA-Z0-9_-]+)`)
	handleRe = regexp.MustCompile(`t\.me/([a-zA-Z0-9_]+)`)
)

// ParseGroupRef classifies a submitted link as a folder, invite or handle
// reference. Folder links parse successfully so callers can reject them.
func ParseGroupRef(link string) (GroupRef, error) {
	link = strings.TrimSpace(link)
	ref := GroupRef{Raw: link}

	switch {
	case strings.Contains(link, "t.me/addlist/"):
		ref.Kind = RefFolder
		return ref, nil
	case strings.Contains(link, "t.me/joinchat/") || strings.Contains(link, "t.me/+"):
		ref.Kind = RefInvite
		m := inviteRe.FindStringSubmatch(link)
		if m == nil {
			return ref, ErrInvalidLink
		}
		ref.InviteHash = m[1]
		return ref, nil
	}

	ref.Kind = RefHandle
	if m := handleRe.FindStringSubmatch(link); m != nil {
		ref.Handle = m[1]
	} else {
		h := strings.ReplaceAll(link, "t.me/", "")
		ref.Handle = strings.TrimSpace(strings.ReplaceAll(h, "@", ""))
	}
	if ref.Handle == "" {
		return ref, ErrInvalidLink
	}
	return ref, nil
}

// Identifier is what Resolve expects for this reference.
func (r GroupRef) Identifier() string {
	if r.Kind == RefHandle {
		return r.Handle
	}
	return r.Raw
}
