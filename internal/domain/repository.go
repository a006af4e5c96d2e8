package domain

import (
	"context"
	"errors"
)

// ErrStaleUser is returned by UserCache.SetUser when the user was invalidated
// after the snapshot was loaded.
var ErrStaleUser = errors.New("user snapshot is stale")

// ShareJournal records every run of the share flow.
type ShareJournal interface {
	RecordShareAttempt(ctx context.Context, attempt *ShareAttempt) error
	ListShareAttempts(ctx context.Context, userID, voteID string, limit int) ([]ShareAttempt, error)
}

// UserCache is the single shared copy of the server-owned User. Every
// invalidation bumps the user's generation, and SetUser only stores a
// snapshot loaded under the current one.
type UserCache interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	Generation(ctx context.Context, userID string) (int64, error)
	SetUser(ctx context.Context, user *User, generation int64) error
	InvalidateUser(ctx context.Context, userID string) error
}
