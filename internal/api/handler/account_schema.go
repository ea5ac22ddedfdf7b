package handler

import "github.com/vidtube/account-service/internal/core/domain"

// --- Request types ---

type loginRequest struct {
	Username string `json:"username" form:"username" validate:"required_without=Email"`
	Email    string `json:"email"    form:"email"    validate:"required_without=Username"`
	Password string `json:"password" form:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword"     validate:"required"`
	NewPassword     string `json:"newPassword"     validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type updateProfileRequest struct {
	FullName string `json:"fullname" validate:"required"`
	Email    string `json:"email"    validate:"required,email"`
}

type changeUsernameRequest struct {
	Username string `json:"username" validate:"required,username"`
}

// --- Response types ---

type loginResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
