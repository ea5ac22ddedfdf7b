package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vidtube/account-service/internal/core/domain"
)

// stubUserRepo is an in-memory UserRepository. Refresh-token operations are
// guarded by a mutex so the rotation race test exercises a real
// compare-and-swap.
type stubUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	failSet bool
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func (r *stubUserRepo) add(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *user
	if clone.ID == "" {
		clone.ID = clone.Username
	}
	r.users[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *stubUserRepo) FindByUsernameOrEmail(_ context.Context, username, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) UpdateFields(_ context.Context, id string, fields map[string]any) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	for k, v := range fields {
		s, _ := v.(string)
		switch k {
		case "fullname":
			u.FullName = s
		case "email":
			u.Email = s
		case "username":
			u.Username = s
		case "avatar_url":
			u.AvatarURL = s
		case "cover_image_url":
			u.CoverImageURL = s
		}
	}
	clone := *u
	return &clone, nil
}

func (r *stubUserRepo) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *stubUserRepo) SetRefreshToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSet {
		return domain.ErrUserNotFound
	}
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.RefreshToken = token
	return nil
}

func (r *stubUserRepo) ClearRefreshToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.RefreshToken = ""
	return nil
}

func (r *stubUserRepo) SwapRefreshToken(_ context.Context, id, oldToken, newToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.RefreshToken != oldToken {
		return domain.ErrRefreshTokenStale
	}
	u.RefreshToken = newToken
	return nil
}

func (r *stubUserRepo) ChannelProfile(_ context.Context, username, _ string) (*domain.ChannelProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return &domain.ChannelProfile{ID: u.ID, Username: u.Username}, nil
		}
	}
	return nil, domain.ErrChannelNotFound
}

func (r *stubUserRepo) WatchHistory(_ context.Context, _ string) ([]domain.WatchEntry, error) {
	return nil, nil
}

func (r *stubUserRepo) AppendWatchHistory(_ context.Context, id, videoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.WatchHistory = append(u.WatchHistory, videoID)
	return nil
}

func (r *stubUserRepo) storedRefreshToken(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u.RefreshToken
	}
	return ""
}

func TestTokenService_IssuePair_RoundTrip(t *testing.T) {
	repo := newStubUserRepo()
	repo.add(&domain.User{ID: "u1", Username: "alice"})
	svc := NewTokenService(repo, "access-secret", "refresh-secret", time.Hour, 24*time.Hour)

	pair, err := svc.IssuePair(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}

	userID, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("expected u1, got %s", userID)
	}

	if got := repo.storedRefreshToken("u1"); got != pair.RefreshToken {
		t.Fatalf("refresh token not persisted: stored %q", got)
	}
}

func TestTokenService_IssuePair_PersistFailure(t *testing.T) {
	repo := newStubUserRepo()
	repo.add(&domain.User{ID: "u1"})
	repo.failSet = true
	svc := NewTokenService(repo, "a", "r", time.Hour, 24*time.Hour)

	if _, err := svc.IssuePair(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error when persistence fails")
	}
}

func TestTokenService_VerifyAccess_Rejections(t *testing.T) {
	repo := newStubUserRepo()
	repo.add(&domain.User{ID: "u1"})
	svc := NewTokenService(repo, "access-secret", "refresh-secret", time.Hour, 24*time.Hour)

	pair, err := svc.IssuePair(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	if _, err := svc.VerifyAccess(""); err != domain.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for empty token, got %v", err)
	}
	if _, err := svc.VerifyAccess("not.a.jwt"); err != domain.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
	// A refresh token is signed with the other secret and must not pass as
	// an access token.
	if _, err := svc.VerifyAccess(pair.RefreshToken); err != domain.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for refresh token, got %v", err)
	}
}

func TestTokenService_VerifyAccess_Expired(t *testing.T) {
	repo := newStubUserRepo()
	repo.add(&domain.User{ID: "u1"})
	// A nanosecond TTL truncates to the current unix second, so the token
	// is expired once the next second ticks over.
	svc := NewTokenService(repo, "access-secret", "refresh-secret", time.Nanosecond, 24*time.Hour)

	pair, err := svc.IssuePair(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	if _, err := svc.VerifyAccess(pair.AccessToken); err != domain.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestTokenService_Rotate_InvalidatesOldToken(t *testing.T) {
	repo := newStubUserRepo()
	repo.add(&domain.User{ID: "u1"})
	svc := NewTokenService(repo, "access-secret", "refresh-secret", time.Hour, 24*time.Hour)

	first, err := svc.IssuePair(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	second, err := svc.Rotate(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("rotation did not produce a new refresh token")
	}
	if got := repo.storedRefreshToken("u1"); got != second.RefreshToken {
		t.Fatalf("stored token not rotated: %q", got)
	}

	// Replaying the superseded token must be rejected.
	if _, err := svc.Rotate(context.Background(), first.RefreshToken); err != domain.ErrRefreshTokenStale {
		t.Fatalf("expected ErrRefreshTokenStale on replay, got %v", err)
	}
}

func TestTokenService_Rotate_AfterLogout(t *testing.T) {
	repo := newStubUserRepo()
	repo.add(&domain.User{ID: "u1"})
	svc := NewTokenService(repo, "access-secret", "refresh-secret", time.Hour, 24*time.Hour)

	pair, err := svc.IssuePair(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	if err := repo.ClearRefreshToken(context.Background(), "u1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	if _, err := svc.Rotate(context.Background(), pair.RefreshToken); err != domain.ErrRefreshTokenStale {
		t.Fatalf("expected ErrRefreshTokenStale after logout, got %v", err)
	}
}

func TestTokenService_Rotate_GarbageToken(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewTokenService(repo, "access-secret", "refresh-secret", time.Hour, 24*time.Hour)

	if _, err := svc.Rotate(context.Background(), "bogus"); err != domain.ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenService_Rotate_ConcurrentSameToken(t *testing.T) {
	repo := newStubUserRepo()
	repo.add(&domain.User{ID: "u1"})
	svc := NewTokenService(repo, "access-secret", "refresh-secret", time.Hour, 24*time.Hour)

	pair, err := svc.IssuePair(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Rotate(context.Background(), pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	successes := 0
	stale := 0
	for _, err := range results {
		switch err {
		case nil:
			successes++
		case domain.ErrRefreshTokenStale:
			stale++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if successes != 1 || stale != 1 {
		t.Fatalf("expected exactly one winner, got %d successes / %d stale", successes, stale)
	}
}
