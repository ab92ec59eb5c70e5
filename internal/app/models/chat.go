package models

import (
	"slices"
	"time"
)

// Chat is a named conversation with a member set. Messages are kept by the
// message repository in insertion order.
type Chat struct {
	ID              string    `json:"id" db:"id"`
	Members         []string  `json:"members" db:"members"`
	Name            string    `json:"name,omitempty" db:"name"`
	Avatar          string    `json:"avatar,omitempty" db:"avatar"`
	PinnedMessageID string    `json:"pinnedMessageId,omitempty" db:"pinned_message_id"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// HasMember reports whether userID belongs to the chat
func (c *Chat) HasMember(userID string) bool {
	return c != nil && slices.Contains(c.Members, userID)
}

// NormalizeMembers drops empty and duplicate ids, keeping first occurrence order
func NormalizeMembers(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
