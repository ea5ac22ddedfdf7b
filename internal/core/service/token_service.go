package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidtube/account-service/internal/core/domain"
	"github.com/vidtube/account-service/internal/core/ports"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenService issues HS256-signed access/refresh tokens. Access tokens are
// stateless (signature + expiry only, no store lookup); refresh tokens are
// additionally persisted on the user record so rotation can detect replay.
type TokenService struct {
	repo          ports.UserRepository
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenService(repo ports.UserRepository, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &TokenService{
		repo:          repo,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssuePair signs a new access/refresh pair for userID and persists the
// refresh token, replacing any prior value. The pair is only returned once
// persistence has succeeded.
func (s *TokenService) IssuePair(ctx context.Context, userID string) (*domain.TokenPair, error) {
	access, err := s.sign(userID, s.accessSecret, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(userID, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := s.repo.SetRefreshToken(ctx, userID, refresh); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess validates signature and expiry of an access token and returns
// the subject user id.
func (s *TokenService) VerifyAccess(token string) (string, error) {
	return s.verify(token, s.accessSecret)
}

// Rotate exchanges a presented refresh token for a fresh pair. The stored
// token must still equal the presented one; the overwrite is a conditional
// update so that of two concurrent rotations with the same token at most one
// succeeds — the loser observes ErrRefreshTokenStale.
func (s *TokenService) Rotate(ctx context.Context, presented string) (*domain.TokenPair, error) {
	userID, err := s.verify(presented, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}

	if presented != user.RefreshToken {
		return nil, domain.ErrRefreshTokenStale
	}

	access, err := s.sign(userID, s.accessSecret, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(userID, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := s.repo.SwapRefreshToken(ctx, userID, presented, refresh); err != nil {
		return nil, err
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// sign includes a jti so two tokens for the same subject are never
// byte-identical, even when issued within the same second — rotation must
// always move the stored value.
func (s *TokenService) sign(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *TokenService) verify(token string, secret []byte) (string, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !tkn.Valid {
		return "", domain.ErrTokenInvalid
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", domain.ErrTokenInvalid
	}
	return sub, nil
}
