package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/catalog"
	"github.com/bryan-buckman/grainotheque/internal/database"
	"github.com/bryan-buckman/grainotheque/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SessionTTL is how long a sign-in stays valid.
const SessionTTL = 7 * 24 * time.Hour

// MinPasswordLength is enforced at sign-up.
const MinPasswordLength = 6

// RemoteDataSource serves everything from the relational backend.
type RemoteDataSource struct {
	db     database.Remote
	logger *zap.Logger
	now    func() time.Time
}

var _ DataSource = (*RemoteDataSource)(nil)

// NewRemote wraps db.
func NewRemote(db database.Remote, logger *zap.Logger) *RemoteDataSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteDataSource{db: db, logger: logger.Named("remote"), now: time.Now}
}

func (r *RemoteDataSource) Name() string { return "remote" }
func (r *RemoteDataSource) Remote() bool { return true }

// --- Listings ---

func (r *RemoteDataSource) Listings(ctx context.Context) ([]model.Listing, error) {
	listings, err := r.db.ListListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

func (r *RemoteDataSource) Listing(ctx context.Context, id string) (model.Listing, error) {
	l, err := r.db.GetListing(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return model.Listing{}, ErrNotFound
		}
		return model.Listing{}, fmt.Errorf("get listing %s: %w", id, err)
	}
	return *l, nil
}

func (r *RemoteDataSource) Publish(ctx context.Context, l model.Listing) error {
	if err := r.db.CreateListing(ctx, &l); err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	r.logger.Info("listing published", zap.String("id", l.ID), zap.String("seller", l.SellerID))
	return nil
}

func (r *RemoteDataSource) Delete(ctx context.Context, id string) error {
	if _, err := r.db.DeleteListing(ctx, id); err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	return nil
}

func (r *RemoteDataSource) Report(ctx context.Context, id string) error {
	if _, err := r.db.IncrementReports(ctx, id); err != nil {
		return fmt.Errorf("report listing %s: %w", id, err)
	}
	return nil
}

func (r *RemoteDataSource) SetImage(ctx context.Context, id, image string) error {
	if _, err := r.db.SetListingImage(ctx, id, image); err != nil {
		return fmt.Errorf("set image %s: %w", id, err)
	}
	return nil
}

// Reset is a local-only action.
func (r *RemoteDataSource) Reset(context.Context) error {
	return ErrNotConfigured
}

// --- Messages ---

// SendMessage delivers m to the seller of m.ListingID.
func (r *RemoteDataSource) SendMessage(ctx context.Context, m model.Message) error {
	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" {
		return &catalog.ValidationError{Field: "content", Message: "Le message est vide."}
	}
	listing, err := r.Listing(ctx, m.ListingID)
	if err != nil {
		return err
	}
	if listing.SellerID == "" {
		return &catalog.ValidationError{Field: "content", Message: "Cette annonce n'a pas de vendeur joignable."}
	}
	m.ID = uuid.NewString()
	m.ReceiverID = listing.SellerID
	m.CreatedAt = r.now()
	if err := r.db.CreateMessage(ctx, &m); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *RemoteDataSource) Inbox(ctx context.Context, userID string) ([]model.Message, error) {
	msgs, err := r.db.ListMessages(ctx, userID, model.InboxLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// --- Accounts ---

func (r *RemoteDataSource) SignUp(ctx context.Context, email, password, displayName string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &catalog.ValidationError{Field: "email", Message: "Adresse email invalide."}
	}
	if len(password) < MinPasswordLength {
		return nil, &catalog.ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("Le mot de passe doit contenir au moins %d caractères.", MinPasswordLength),
		}
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = "Vendeur"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    r.now(),
	}
	if err := r.db.CreateUser(ctx, u); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	r.logger.Info("user signed up", zap.String("user_id", u.ID))
	return u, nil
}

func (r *RemoteDataSource) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	u, err := r.db.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}

	s := &model.Session{
		Token:     uuid.NewString(),
		User:      *u,
		ExpiresAt: r.now().Add(SessionTTL),
	}
	s.User.PasswordHash = ""
	if err := r.db.CreateSession(ctx, s.Token, u.ID, s.ExpiresAt); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (r *RemoteDataSource) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := r.db.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *RemoteDataSource) Session(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	s, err := r.db.GetSession(ctx, token)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}
