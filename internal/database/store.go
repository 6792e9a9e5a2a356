// Package database provides storage backends for the marketplace.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/model"
)

// Store errors.
var (
	ErrNotFound   = errors.New("record not found")
	ErrEmailTaken = errors.New("email already registered")
)

// KV persists opaque values under string keys.
// SQLite, Redis and in-memory implementations satisfy this interface.
type KV interface {
	Close() error

	// Backend returns the name of the storage backend ("SQLite", "Redis", "memory").
	Backend() string

	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
}

// Remote defines the relational operations of the remote data source.
type Remote interface {
	Close() error

	// Listing operations
	ListListings(ctx context.Context) ([]model.Listing, error)
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	CreateListing(ctx context.Context, l *model.Listing) error
	DeleteListing(ctx context.Context, id string) (bool, error)
	IncrementReports(ctx context.Context, id string) (bool, error)
	SetListingImage(ctx context.Context, id, image string) (bool, error)

	// Message operations
	CreateMessage(ctx context.Context, m *model.Message) error
	ListMessages(ctx context.Context, userID string, limit int) ([]model.Message, error)

	// User and session operations
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (*model.Session, error)
	DeleteSession(ctx context.Context, token string) error
}
