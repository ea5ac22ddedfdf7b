package handler

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/vidtube/account-service/internal/api/metrics"
	"github.com/vidtube/account-service/internal/api/respond"
	"github.com/vidtube/account-service/internal/core/domain"
	"github.com/vidtube/account-service/internal/core/ports"
)

// AccountHandler handles registration, profile, and media endpoints.
type AccountHandler struct {
	accounts ports.AccountService
}

func NewAccountHandler(accounts ports.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Register handles POST /register — multipart form with avatar (required)
// and coverImage (optional) files.
//
// @Summary      Register a new user
// @Tags         accounts
// @Accept       multipart/form-data
// @Produce      json
// @Success      201  {object}  respond.Envelope
// @Failure      400  {object}  respond.ErrorEnvelope
// @Failure      409  {object}  respond.ErrorEnvelope
// @Router       /register [post]
func (h *AccountHandler) Register(c echo.Context) error {
	input := ports.RegisterInput{
		Username: c.FormValue("username"),
		FullName: c.FormValue("fullname"),
		Email:    c.FormValue("email"),
		Password: c.FormValue("password"),
	}

	avatarPath, err := saveUpload(c, "avatar")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		return err
	}
	input.AvatarPath = avatarPath

	coverPath, err := saveUpload(c, "coverImage")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		cleanupTemp(avatarPath)
		return err
	}
	input.CoverImagePath = coverPath

	user, err := h.accounts.Register(c.Request().Context(), input)
	if err != nil {
		cleanupTemp(avatarPath, coverPath)
		metrics.RegistrationsTotal.WithLabelValues(registerResult(err)).Inc()
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues("ok").Inc()
	return respond.OK(c, http.StatusCreated, user, "User registered successfully")
}

// CurrentUser handles GET /me.
func (h *AccountHandler) CurrentUser(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	current, err := h.accounts.CurrentUser(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, current, "Current user fetched successfully")
}

// UpdateProfile handles PATCH /profile — fullname and email, both required.
func (h *AccountHandler) UpdateProfile(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := h.accounts.UpdateProfile(c.Request().Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, updated, "Account details updated successfully")
}

// ChangeUsername handles PATCH /username — renames the channel.
func (h *AccountHandler) ChangeUsername(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req changeUsernameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := h.accounts.ChangeUsername(c.Request().Context(), user.ID, req.Username)
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, updated, "Username changed successfully")
}

// ChangePassword handles POST /change-password.
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.accounts.ChangePassword(c.Request().Context(), user.ID, req.OldPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, nil, "Password changed successfully")
}

// UpdateAvatar handles PATCH /avatar — multipart file field "avatar".
func (h *AccountHandler) UpdateAvatar(c echo.Context) error {
	return h.updateImage(c, "avatar", func(ctx echo.Context, userID, path string) (*domain.User, error) {
		return h.accounts.UpdateAvatar(ctx.Request().Context(), userID, path)
	}, "Avatar updated successfully")
}

// UpdateCoverImage handles PATCH /cover-image — multipart file field "coverImage".
func (h *AccountHandler) UpdateCoverImage(c echo.Context) error {
	return h.updateImage(c, "coverImage", func(ctx echo.Context, userID, path string) (*domain.User, error) {
		return h.accounts.UpdateCoverImage(ctx.Request().Context(), userID, path)
	}, "Cover image updated successfully")
}

func (h *AccountHandler) updateImage(c echo.Context, field string, update func(echo.Context, string, string) (*domain.User, error), message string) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	path, err := saveUpload(c, field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return echo.NewHTTPError(http.StatusBadRequest, field+" file is missing")
		}
		return err
	}

	updated, err := update(c, user.ID, path)
	if err != nil {
		cleanupTemp(path)
		metrics.MediaUploadsTotal.WithLabelValues(mediaKind(field), "error").Inc()
		return err
	}

	metrics.MediaUploadsTotal.WithLabelValues(mediaKind(field), "ok").Inc()
	return respond.OK(c, http.StatusOK, updated, message)
}

// saveUpload copies the named multipart file into a local temp file and
// returns its path; the media store consumes and removes it. Returns
// http.ErrMissingFile when the field is absent.
func saveUpload(c echo.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", http.ErrMissingFile
	}

	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// cleanupTemp removes leftover temp files from an aborted request. The media
// store already removes files it consumed, so missing paths are fine.
func cleanupTemp(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}

func registerResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserExists):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func mediaKind(field string) string {
	if field == "coverImage" {
		return "cover_image"
	}
	return "avatar"
}
