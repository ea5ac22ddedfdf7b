package ports

import (
	"context"

	"github.com/vidtube/account-service/internal/core/domain"
)

// UserRepository defines the persistence contract for user accounts.
//
// All mutations are single-document atomic updates; SwapRefreshToken is the
// conditional compare-and-swap used by token rotation.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error)

	// UpdateFields patches the named fields on one user and returns the
	// updated record. Field names follow the stored document schema.
	UpdateFields(ctx context.Context, id string, fields map[string]any) (*domain.User, error)

	// UpdatePassword stores a new password hash, bypassing any full-document
	// validation: this is a deliberate single-field write.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	SetRefreshToken(ctx context.Context, id, token string) error
	ClearRefreshToken(ctx context.Context, id string) error

	// SwapRefreshToken replaces the stored refresh token only if it still
	// equals oldToken. Returns domain.ErrRefreshTokenStale when the stored
	// value has already moved on (rotation race or replay).
	SwapRefreshToken(ctx context.Context, id, oldToken, newToken string) error

	// ChannelProfile runs the subscription aggregation for the named channel,
	// computing counts and whether viewerID is a subscriber.
	ChannelProfile(ctx context.Context, username, viewerID string) (*domain.ChannelProfile, error)

	// WatchHistory joins the user's watch history against the videos
	// collection, embedding each video's owner projection.
	WatchHistory(ctx context.Context, userID string) ([]domain.WatchEntry, error)

	AppendWatchHistory(ctx context.Context, userID, videoID string) error
}
