// Package datasource selects where listings, messages and accounts live.
package datasource

import (
	"context"
	"errors"

	"github.com/bryan-buckman/grainotheque/internal/database"
	"github.com/bryan-buckman/grainotheque/internal/model"
)

// Errors returned by data sources.
var (
	ErrNotFound      = database.ErrNotFound
	ErrEmailTaken    = database.ErrEmailTaken
	ErrNotConfigured = errors.New("remote backend not configured")
	ErrUnauthorized  = errors.New("invalid email or password")
)

// DataSource is the capability a page controller works against.
type DataSource interface {
	// Name identifies the implementation for logs and the UI.
	Name() string

	// Remote reports whether accounts and messaging are available.
	Remote() bool

	// Listings returns every listing.
	Listings(ctx context.Context) ([]model.Listing, error)
	// Listing returns one listing or ErrNotFound.
	Listing(ctx context.Context, id string) (model.Listing, error)
	// Publish stores a new listing.
	Publish(ctx context.Context, l model.Listing) error
	// Delete removes a listing. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
	// Report increments a listing's report counter. Unknown ids are not an error.
	Report(ctx context.Context, id string) error
	// SetImage replaces a listing's image. Unknown ids are not an error.
	SetImage(ctx context.Context, id, image string) error
	// Reset restores the seed listings.
	Reset(ctx context.Context) error

	// SendMessage stores a message to a listing's seller.
	SendMessage(ctx context.Context, m model.Message) error
	// Inbox returns the latest messages sent or received by userID.
	Inbox(ctx context.Context, userID string) ([]model.Message, error)

	SignUp(ctx context.Context, email, password, displayName string) (*model.User, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context, token string) error
	Session(ctx context.Context, token string) (*model.Session, error)
}
