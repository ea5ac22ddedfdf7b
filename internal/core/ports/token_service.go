package ports

import (
	"context"

	"github.com/vidtube/account-service/internal/core/domain"
)

// TokenService issues and verifies the signed access/refresh token pair.
type TokenService interface {
	// IssuePair signs a short-lived access token and a long-lived refresh
	// token for userID, persisting the refresh token on the user record
	// (replacing any prior value) before returning.
	IssuePair(ctx context.Context, userID string) (*domain.TokenPair, error)

	// VerifyAccess validates signature and expiry of an access token and
	// returns the user id it was issued for. Fails with domain.ErrTokenInvalid.
	VerifyAccess(token string) (string, error)

	// Rotate exchanges a presented refresh token for a fresh pair. The
	// presented token must match the stored one exactly; anything else —
	// including a previously rotated-out token — fails with
	// domain.ErrRefreshTokenStale.
	Rotate(ctx context.Context, presented string) (*domain.TokenPair, error)
}
