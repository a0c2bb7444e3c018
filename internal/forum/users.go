package forum

import (
	"context"
	"strings"
	"time"

	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength  = 8
	maxSignatureLength = 500
	maxBioLength       = 1000
)

// RegisterUser creates an account. Username and email are unique, compared
// case-insensitively by the store.
func (s *Service) RegisterUser(ctx context.Context, username, email, password string) (*models.User, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, utils.NewInvalidArgumentError(msgAllFieldsRequired)
	}
	if len(password) < minPasswordLength {
		return nil, utils.NewInvalidArgumentError("Password must be at least 8 characters.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInternal, "Failed to register user", err)
	}

	now := s.now()
	user := &models.User{
		ID:             uuid.New(),
		Username:       username,
		Email:          email,
		HashedPassword: string(hash),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.InsertUser(ctx, user)
	}); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns a user's public profile.
func (s *Service) GetUser(ctx context.Context, rawID string) (*models.PublicProfile, error) {
	id, err := parseID(rawID, "Invalid user ID format")
	if err != nil {
		return nil, err
	}
	user, err := s.resolveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// PostPage is one page of a user's root posts.
type PostPage struct {
	Posts []*models.Content `json:"posts"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// ListUserPosts lists a user's root posts, sticky first, newest first.
func (s *Service) ListUserPosts(ctx context.Context, rawID string, page models.Page) (*PostPage, error) {
	id, err := parseID(rawID, "Invalid user ID format")
	if err != nil {
		return nil, err
	}
	if _, err := s.resolveUser(ctx, id); err != nil {
		return nil, err
	}
	posts, total, err := s.store.ListPostsByAuthor(ctx, id, page)
	if err != nil {
		return nil, err
	}
	return &PostPage{Posts: posts, Total: total, Page: page.Number, Limit: page.Limit}, nil
}

// UpdateProfile replaces the caller's bio, location and birthdate.
func (s *Service) UpdateProfile(ctx context.Context, caller Identity, bio, location string, birthdate *time.Time) (*models.User, error) {
	if err := requireIdentity(caller, msgLoginRequired); err != nil {
		return nil, err
	}
	bio, location = cleanText(bio), cleanText(location)
	if len(bio) > maxBioLength {
		return nil, utils.NewInvalidArgumentError("Bio is too long.")
	}
	if birthdate != nil && birthdate.After(s.now()) {
		return nil, utils.NewInvalidArgumentError("Birthdate cannot be in the future.")
	}

	var user *models.User
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.store.UpdateProfile(ctx, caller.ID, models.Profile{Bio: bio, Location: location, Birthdate: birthdate})
		return err
	})
	s.users.Remove(caller.ID)
	return user, err
}

// UpdateSignature replaces the caller's forum signature.
func (s *Service) UpdateSignature(ctx context.Context, caller Identity, signature string) (*models.User, error) {
	if err := requireIdentity(caller, msgLoginRequired); err != nil {
		return nil, err
	}
	signature = cleanText(signature)
	if len(signature) > maxSignatureLength {
		return nil, utils.NewInvalidArgumentError("Signature is too long.")
	}

	var user *models.User
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.store.UpdateSignature(ctx, caller.ID, signature)
		return err
	})
	s.users.Remove(caller.ID)
	return user, err
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, caller Identity, current, next string) error {
	if err := requireIdentity(caller, msgLoginRequired); err != nil {
		return err
	}
	if current == "" || next == "" {
		return utils.NewInvalidArgumentError(msgAllFieldsRequired)
	}
	if len(next) < minPasswordLength {
		return utils.NewInvalidArgumentError("Password must be at least 8 characters.")
	}

	// Skip the cache: the hash must be the stored one.
	user, err := s.store.GetUser(ctx, caller.ID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(current)) != nil {
		return utils.NewForbiddenError("Current password is incorrect.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return utils.NewAppError(utils.ErrInternal, "Failed to update password", err)
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.UpdatePassword(ctx, caller.ID, string(hash))
	})
	s.users.Remove(caller.ID)
	return err
}
