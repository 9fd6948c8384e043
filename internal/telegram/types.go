// Package telegram is a small Telegram Bot API client covering what the
// access gate needs: login widget verification, group membership checks and
// group notifications.
package telegram

import (
	"strconv"
	"strings"
)

// User is a Telegram user as returned by the Bot API.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns @username, or the full name, or "User <id>".
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return "User " + strconv.FormatInt(u.ID, 10)
}

// ChatMember is one member of a chat with their status.
type ChatMember struct {
	User   User   `json:"user"`
	Status string `json:"status"`
}

// Member statuses that grant access.
var allowedStatuses = map[string]bool{
	"creator":       true,
	"administrator": true,
	"member":        true,
	"restricted":    true,
}

// IsMember reports whether the status counts as group membership.
func (m ChatMember) IsMember() bool {
	return allowedStatuses[m.Status]
}

// Chat is the subset of chat info used for config validation.
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// LoginData is the payload produced by the Telegram login widget.
type LoginData struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// User returns the Bot API view of the login.
func (d LoginData) User() User {
	return User{ID: d.ID, FirstName: d.FirstName, LastName: d.LastName, Username: d.Username}
}
