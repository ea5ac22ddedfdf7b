package domain

import (
	"errors"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")
var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrUserNotFound = errors.New("user not found")
var ErrUserExists = errors.New("user with email or username already exists")
var ErrChannelNotFound = errors.New("channel not found")
var ErrTokenInvalid = errors.New("invalid or expired token")
var ErrRefreshTokenStale = errors.New("refresh token is expired or used")

// User models an account on the platform. A user is also a channel: other
// users subscribe to it and its videos appear in their watch histories.
//
// PasswordHash and RefreshToken are secrets and never serialized; every
// payload returned to a client goes through Sanitize first.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullname"`
	PasswordHash  string    `json:"-"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage,omitempty"`
	RefreshToken  string    `json:"-"`
	WatchHistory  []string  `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Sanitize returns a copy safe to hand to a client: secret fields cleared.
func (u *User) Sanitize() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	clone.RefreshToken = ""
	clone.WatchHistory = nil
	return &clone
}

// TokenPair is the credential set issued on login and on refresh rotation.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ChannelProfile is the read-side projection of a user as a channel,
// produced by the subscription aggregation pipeline.
type ChannelProfile struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	FullName          string    `json:"fullname"`
	Email             string    `json:"email"`
	AvatarURL         string    `json:"avatar"`
	CoverImageURL     string    `json:"coverImage,omitempty"`
	SubscriberCount   int64     `json:"subscribersCount"`
	SubscribedToCount int64     `json:"channelsSubscribedToCount"`
	IsSubscribed      bool      `json:"isSubscribed"`
	CreatedAt         time.Time `json:"created_at"`
}

// Subscription is the subscriber→channel edge between two users.
type Subscription struct {
	Subscriber string    `json:"subscriber"`
	Channel    string    `json:"channel"`
	CreatedAt  time.Time `json:"created_at"`
}

// WatchEntry is one joined row of a user's watch history: the video plus a
// trimmed projection of its owner.
type WatchEntry struct {
	VideoID      string     `json:"id"`
	Title        string     `json:"title"`
	ThumbnailURL string     `json:"thumbnail,omitempty"`
	Duration     float64    `json:"duration"`
	Owner        VideoOwner `json:"owner"`
}

// VideoOwner is the projection of a video's owning channel embedded in
// watch-history results.
type VideoOwner struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullname"`
	AvatarURL string `json:"avatar"`
}
