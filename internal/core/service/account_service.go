package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/account-service/internal/core/domain"
	"github.com/vidtube/account-service/internal/core/ports"
)

// AccountService coordinates the user repository, token service, and media
// storage for all account operations.
type AccountService struct {
	repo   ports.UserRepository
	tokens ports.TokenService
	media  ports.MediaStorage
	logger zerolog.Logger
}

func NewAccountService(repo ports.UserRepository, tokens ports.TokenService, media ports.MediaStorage, logger zerolog.Logger) *AccountService {
	return &AccountService{repo: repo, tokens: tokens, media: media, logger: logger}
}

// Register creates a new account. The existence check runs before any media
// upload so a duplicate registration never leaves an orphaned object behind.
func (s *AccountService) Register(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))
	fullName := strings.TrimSpace(input.FullName)
	email := strings.TrimSpace(input.Email)

	if username == "" || fullName == "" || email == "" || strings.TrimSpace(input.Password) == "" {
		return nil, fmt.Errorf("%w: all fields are required", domain.ErrInvalidInput)
	}

	if existing, err := s.repo.FindByUsernameOrEmail(ctx, username, email); err == nil && existing != nil {
		return nil, domain.ErrUserExists
	} else if err != nil && err != domain.ErrUserNotFound {
		return nil, err
	}

	if input.AvatarPath == "" {
		return nil, fmt.Errorf("%w: avatar file is required", domain.ErrInvalidInput)
	}

	avatarURL, err := s.media.Upload(ctx, input.AvatarPath)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("avatar upload failed")
		return nil, fmt.Errorf("%w: avatar upload failed", domain.ErrInvalidInput)
	}

	coverURL := ""
	if input.CoverImagePath != "" {
		coverURL, err = s.media.Upload(ctx, input.CoverImagePath)
		if err != nil {
			s.logger.Error().Err(err).Str("username", username).Msg("cover image upload failed")
			return nil, fmt.Errorf("%w: cover image upload failed", domain.ErrInvalidInput)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		PasswordHash:  string(hash),
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	// Read-after-write check: the record must be findable before we answer.
	fetched, err := s.repo.FindByID(ctx, created.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", created.ID).Msg("post-create read-back failed")
		return nil, fmt.Errorf("read back created user: %w", err)
	}

	s.logger.Info().Str("user_id", fetched.ID).Str("username", username).Msg("user registered")
	return fetched.Sanitize(), nil
}

// Login authenticates by username or email and issues a token pair.
func (s *AccountService) Login(ctx context.Context, input ports.LoginInput) (*ports.LoginResult, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))
	email := strings.TrimSpace(input.Email)
	if username == "" && email == "" {
		return nil, fmt.Errorf("%w: username or email is required", domain.ErrInvalidInput)
	}

	user, err := s.repo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user logged in")
	return &ports.LoginResult{User: user.Sanitize(), Tokens: pair}, nil
}

// Logout clears the stored refresh token. Clearing an already-empty field is
// not an error, so logout is idempotent.
func (s *AccountService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.ClearRefreshToken(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("user logged out")
	return nil
}

// ChangePassword verifies the old password and stores a fresh hash of the
// new one via a single-field update.
func (s *AccountService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword, confirmPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: old and new password are required", domain.ErrInvalidInput)
	}
	if newPassword != confirmPassword {
		return fmt.Errorf("%w: confirm password does not match", domain.ErrInvalidInput)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return fmt.Errorf("%w: invalid old password", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", userID).Msg("password changed")
	return nil
}

// UpdateProfile replaces fullname and email; both fields are required.
func (s *AccountService) UpdateProfile(ctx context.Context, userID, fullName, email string) (*domain.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if fullName == "" || email == "" {
		return nil, fmt.Errorf("%w: fullname and email are required", domain.ErrInvalidInput)
	}

	updated, err := s.repo.UpdateFields(ctx, userID, map[string]any{
		"fullname": fullName,
		"email":    email,
	})
	if err != nil {
		return nil, err
	}
	return updated.Sanitize(), nil
}

// ChangeUsername renames the channel. The new name is lowercased and subject
// to the same uniqueness constraint as registration.
func (s *AccountService) ChangeUsername(ctx context.Context, userID, username string) (*domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}

	updated, err := s.repo.UpdateFields(ctx, userID, map[string]any{"username": username})
	if err != nil {
		return nil, err
	}
	return updated.Sanitize(), nil
}

// UpdateAvatar uploads a replacement avatar and persists its URL.
func (s *AccountService) UpdateAvatar(ctx context.Context, userID, localPath string) (*domain.User, error) {
	return s.updateImage(ctx, userID, localPath, "avatar_url", "avatar")
}

// UpdateCoverImage uploads a replacement cover image and persists its URL.
func (s *AccountService) UpdateCoverImage(ctx context.Context, userID, localPath string) (*domain.User, error) {
	return s.updateImage(ctx, userID, localPath, "cover_image_url", "cover image")
}

func (s *AccountService) updateImage(ctx context.Context, userID, localPath, field, kind string) (*domain.User, error) {
	if localPath == "" {
		return nil, fmt.Errorf("%w: %s file is required", domain.ErrInvalidInput, kind)
	}

	url, err := s.media.Upload(ctx, localPath)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg(kind + " upload failed")
		return nil, fmt.Errorf("%w: %s upload failed", domain.ErrInvalidInput, kind)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: %s upload yielded no url", domain.ErrInvalidInput, kind)
	}

	updated, err := s.repo.UpdateFields(ctx, userID, map[string]any{field: url})
	if err != nil {
		return nil, err
	}
	return updated.Sanitize(), nil
}

// CurrentUser returns the sanitized record for the authenticated user.
func (s *AccountService) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Sanitize(), nil
}

// ChannelProfile runs the read-side subscription aggregation for a channel.
func (s *AccountService) ChannelProfile(ctx context.Context, username, viewerID string) (*domain.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	return s.repo.ChannelProfile(ctx, username, viewerID)
}

// WatchHistory returns the user's watch history joined with video owners.
func (s *AccountService) WatchHistory(ctx context.Context, userID string) ([]domain.WatchEntry, error) {
	return s.repo.WatchHistory(ctx, userID)
}
