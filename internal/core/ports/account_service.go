package ports

import (
	"context"

	"github.com/vidtube/account-service/internal/core/domain"
)

// RegisterInput carries the multipart registration form. Avatar is a local
// temp file path and is required; cover image is optional.
type RegisterInput struct {
	Username       string
	FullName       string
	Email          string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// LoginInput requires at least one of Username/Email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult bundles the sanitized user with the issued token pair.
type LoginResult struct {
	User   *domain.User      `json:"user"`
	Tokens *domain.TokenPair `json:"-"`
}

type AccountService interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, error)
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword, confirmPassword string) error
	UpdateProfile(ctx context.Context, userID, fullName, email string) (*domain.User, error)
	ChangeUsername(ctx context.Context, userID, username string) (*domain.User, error)
	UpdateAvatar(ctx context.Context, userID, localPath string) (*domain.User, error)
	UpdateCoverImage(ctx context.Context, userID, localPath string) (*domain.User, error)
	CurrentUser(ctx context.Context, userID string) (*domain.User, error)
	ChannelProfile(ctx context.Context, username, viewerID string) (*domain.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]domain.WatchEntry, error)
}
