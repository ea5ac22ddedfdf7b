package handler_test

import (
	"context"

	"github.com/vidtube/account-service/internal/core/domain"
	"github.com/vidtube/account-service/internal/core/ports"
	"github.com/vidtube/account-service/internal/infrastructure/queue"
)

// stubAccounts lets each test install just the operations it exercises.
type stubAccounts struct {
	registerFn       func(ctx context.Context, input ports.RegisterInput) (*domain.User, error)
	loginFn          func(ctx context.Context, input ports.LoginInput) (*ports.LoginResult, error)
	logoutFn         func(ctx context.Context, userID string) error
	changePasswordFn func(ctx context.Context, userID, oldPw, newPw, confirm string) error
	updateProfileFn  func(ctx context.Context, userID, fullName, email string) (*domain.User, error)
	channelProfileFn func(ctx context.Context, username, viewerID string) (*domain.ChannelProfile, error)
	watchHistoryFn   func(ctx context.Context, userID string) ([]domain.WatchEntry, error)
}

func (s *stubAccounts) Register(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
	return s.registerFn(ctx, input)
}

func (s *stubAccounts) Login(ctx context.Context, input ports.LoginInput) (*ports.LoginResult, error) {
	return s.loginFn(ctx, input)
}

func (s *stubAccounts) Logout(ctx context.Context, userID string) error {
	return s.logoutFn(ctx, userID)
}

func (s *stubAccounts) ChangePassword(ctx context.Context, userID, oldPw, newPw, confirm string) error {
	return s.changePasswordFn(ctx, userID, oldPw, newPw, confirm)
}

func (s *stubAccounts) UpdateProfile(ctx context.Context, userID, fullName, email string) (*domain.User, error) {
	return s.updateProfileFn(ctx, userID, fullName, email)
}

func (s *stubAccounts) ChangeUsername(_ context.Context, _, username string) (*domain.User, error) {
	return &domain.User{ID: "u1", Username: username}, nil
}

func (s *stubAccounts) UpdateAvatar(_ context.Context, _, _ string) (*domain.User, error) {
	return &domain.User{ID: "u1", AvatarURL: "https://media.test/avatar"}, nil
}

func (s *stubAccounts) UpdateCoverImage(_ context.Context, _, _ string) (*domain.User, error) {
	return &domain.User{ID: "u1", CoverImageURL: "https://media.test/cover"}, nil
}

func (s *stubAccounts) CurrentUser(_ context.Context, userID string) (*domain.User, error) {
	return &domain.User{ID: userID, Username: "alice"}, nil
}

func (s *stubAccounts) ChannelProfile(ctx context.Context, username, viewerID string) (*domain.ChannelProfile, error) {
	return s.channelProfileFn(ctx, username, viewerID)
}

func (s *stubAccounts) WatchHistory(ctx context.Context, userID string) ([]domain.WatchEntry, error) {
	return s.watchHistoryFn(ctx, userID)
}

// stubTokens verifies every access token as authedUserID and rotates via
// rotateFn.
type stubTokens struct {
	authedUserID string
	verifyErr    error
	rotateFn     func(ctx context.Context, presented string) (*domain.TokenPair, error)
}

func (s *stubTokens) IssuePair(context.Context, string) (*domain.TokenPair, error) {
	return &domain.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (s *stubTokens) VerifyAccess(string) (string, error) {
	if s.verifyErr != nil {
		return "", s.verifyErr
	}
	return s.authedUserID, nil
}

func (s *stubTokens) Rotate(ctx context.Context, presented string) (*domain.TokenPair, error) {
	return s.rotateFn(ctx, presented)
}

// stubLoader backs the auth guard with a fixed user.
type stubLoader struct {
	user *domain.User
	err  error
}

func (s *stubLoader) FindByID(context.Context, string) (*domain.User, error) {
	return s.user, s.err
}

// stubRecorder captures enqueued watch events.
type stubRecorder struct {
	events []queue.WatchEvent
}

func (s *stubRecorder) Enqueue(event queue.WatchEvent) {
	s.events = append(s.events, event)
}

// stubThrottle blocks when blocked is set and counts failures.
type stubThrottle struct {
	blocked  bool
	failures int
	resets   int
}

func (s *stubThrottle) Allow(context.Context, string) bool { return !s.blocked }

func (s *stubThrottle) RecordFailure(context.Context, string) error {
	s.failures++
	return nil
}

func (s *stubThrottle) Reset(context.Context, string) error {
	s.resets++
	return nil
}
