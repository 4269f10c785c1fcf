package model

import (
	"sort"
	"time"
)

type Conversation struct {
	ID           string    `json:"id"`
	IsGroup      bool      `json:"is_group"`
	Name         string    `json:"name,omitempty"`
	Participants []string  `json:"participants"`
	Admins       []string  `json:"admins,omitempty"`
	ArchivedBy   []string  `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	return containsString(c.Participants, userID)
}

func (c *Conversation) IsAdmin(userID string) bool {
	return containsString(c.Admins, userID)
}

func (c *Conversation) ArchivedFor(userID string) bool {
	return containsString(c.ArchivedBy, userID)
}

// PairKey normalizes an unordered pair of user ids so that (a,b) and (b,a)
// address the same 1:1 conversation.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Union returns set with every id of add appended once, preserving order.
func Union(set []string, add ...string) []string {
	out := append([]string(nil), set...)
	for _, id := range add {
		if id != "" && !containsString(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Without returns set with id removed.
func Without(set []string, id string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func containsString(set []string, id string) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

func sortStrings(s []string) { sort.Strings(s) }
