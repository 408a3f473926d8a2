package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable indicates the identity store could not be reached. Sessions
// surface it as a readable failure, never as a raw driver error.
var ErrUnavailable = errors.New("identity: store unavailable")

// Profile carries what the chat transport knows about a user on first contact.
type Profile struct {
	PlatformUserID int64
	ChatID         int64
	Username       string
	FirstName      string
	LastName       string
}

// User is the stable identity mapping for one platform user.
type User struct {
	UUID           string
	PlatformUserID int64
	ChatID         int64
	Username       string
	FirstName      string
	LastName       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName renders the display name used as the patient name on bookings.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// Resolver maps a platform user id to a stable internal user. Resolve is
// find-or-create: concurrent first contacts for the same platform id must
// yield exactly one internal id.
type Resolver interface {
	Resolve(ctx context.Context, profile Profile) (*User, error)
}
