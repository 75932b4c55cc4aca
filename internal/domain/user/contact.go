package user

import (
	"errors"
	"strings"
)

// Contact holds the outbound addresses of a user, as read from the `users` table.
type Contact struct {
	UserID string
	Email  string
	Phone  string
}

// Reachable reports whether at least one channel is available.
func (contact Contact) Reachable() bool {
	return strings.TrimSpace(contact.Email) != "" || strings.TrimSpace(contact.Phone) != ""
}

var ErrNotFound = errors.New("user not found")
