// Package users implements the per-user preference store. Records are keyed
// by phone number, which doubles as the SMS delivery target.
package users

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for the given phone number.
var ErrNotFound = errors.New("user not found")

// Preference is how often a user wants their spending summary.
type Preference string

const (
	PreferenceDaily   Preference = "daily"
	PreferenceWeekly  Preference = "weekly"
	PreferenceMonthly Preference = "monthly"

	// DefaultPreference is assigned on first login.
	DefaultPreference = PreferenceDaily
)

// ParsePreference validates a client-supplied preference string.
func ParsePreference(s string) (Preference, error) {
	switch Preference(s) {
	case PreferenceDaily, PreferenceWeekly, PreferenceMonthly:
		return Preference(s), nil
	}
	return "", errors.New("notification preference must be daily, weekly or monthly")
}

// User is one registered subscriber.
type User struct {
	// PhoneNumber is the primary key and SMS destination.
	PhoneNumber string `firestore:"phoneNumber" json:"phoneNumber"`

	// Preference controls summary frequency.
	Preference Preference `firestore:"notificationPreference" json:"notificationPreference"`

	// AccessToken is the stored aggregator credential. Once present it is
	// the only way the background summarizer can sync this user's
	// transactions without an interactive session. Never returned to
	// clients.
	AccessToken string `firestore:"accessToken" json:"-"`

	// ItemID identifies the linked bank item at the aggregator.
	ItemID string `firestore:"itemId,omitempty" json:"-"`

	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// Repository defines the storage operations for user records. Implementations
// must return ErrNotFound for operations that require an existing record.
type Repository interface {
	// Get retrieves a user by phone number.
	Get(ctx context.Context, phoneNumber string) (*User, error)

	// Create stores a new user record. Creating a phone number that
	// already exists is an error; callers wanting idempotent registration
	// should Get first.
	Create(ctx context.Context, user *User) error

	// SetCredential overwrites the stored aggregator credential of an
	// existing record.
	SetCredential(ctx context.Context, phoneNumber, accessToken, itemID string) error

	// SetPreference updates the notification preference of an existing
	// record.
	SetPreference(ctx context.Context, phoneNumber string, pref Preference) error

	// Delete removes the record entirely. Unsubscribing is destructive,
	// not a soft flag.
	Delete(ctx context.Context, phoneNumber string) error

	// List returns all registered users, for the background summarizer.
	List(ctx context.Context) ([]*User, error)
}
