package model

import "time"

// User is owned by the identity subsystem; this core only reads it and
// writes the presence fields.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"fullname"`
	Username     string    `json:"username"`
	Online       bool      `json:"is_online"`
	LastSeen     time.Time `json:"last_seen"`
	BlockedUsers []string  `json:"-"`
}

func (u *User) HasBlocked(userID string) bool {
	return containsString(u.BlockedUsers, userID)
}

// Receipts partitions the non-sender participants of a message.
type Receipts struct {
	Seen      []string `json:"seen"`
	Delivered []string `json:"delivered"`
	Pending   []string `json:"pending"`
}
