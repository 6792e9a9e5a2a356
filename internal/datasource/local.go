package datasource

import (
	"context"

	"github.com/bryan-buckman/grainotheque/internal/catalog"
	"github.com/bryan-buckman/grainotheque/internal/model"
)

// LocalDataSource serves listings from a catalog.Store. Accounts and
// messaging need the remote backend and report ErrNotConfigured.
type LocalDataSource struct {
	store *catalog.Store
}

var _ DataSource = (*LocalDataSource)(nil)

// NewLocal wraps store.
func NewLocal(store *catalog.Store) *LocalDataSource {
	return &LocalDataSource{store: store}
}

func (l *LocalDataSource) Name() string { return "local" }
func (l *LocalDataSource) Remote() bool { return false }

func (l *LocalDataSource) Listings(ctx context.Context) ([]model.Listing, error) {
	return l.store.All(ctx), nil
}

func (l *LocalDataSource) Listing(ctx context.Context, id string) (model.Listing, error) {
	listing, ok := l.store.Get(ctx, id)
	if !ok {
		return model.Listing{}, ErrNotFound
	}
	return listing, nil
}

func (l *LocalDataSource) Publish(ctx context.Context, listing model.Listing) error {
	_, err := l.store.Insert(ctx, listing)
	return err
}

func (l *LocalDataSource) Delete(ctx context.Context, id string) error {
	_, err := l.store.Remove(ctx, id)
	return err
}

func (l *LocalDataSource) Report(ctx context.Context, id string) error {
	_, err := l.store.IncrementReportCount(ctx, id)
	return err
}

func (l *LocalDataSource) SetImage(ctx context.Context, id, image string) error {
	_, err := l.store.SetImage(ctx, id, image)
	return err
}

func (l *LocalDataSource) Reset(ctx context.Context) error {
	return l.store.Reset(ctx)
}

func (l *LocalDataSource) SendMessage(context.Context, model.Message) error {
	return ErrNotConfigured
}

func (l *LocalDataSource) Inbox(context.Context, string) ([]model.Message, error) {
	return nil, ErrNotConfigured
}

func (l *LocalDataSource) SignUp(context.Context, string, string, string) (*model.User, error) {
	return nil, ErrNotConfigured
}

func (l *LocalDataSource) SignIn(context.Context, string, string) (*model.Session, error) {
	return nil, ErrNotConfigured
}

func (l *LocalDataSource) SignOut(context.Context, string) error {
	return nil
}

func (l *LocalDataSource) Session(context.Context, string) (*model.Session, error) {
	return nil, ErrNotConfigured
}
