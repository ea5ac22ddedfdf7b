package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vidtube/account-service/internal/api/respond"
	"github.com/vidtube/account-service/internal/core/ports"
	"github.com/vidtube/account-service/internal/infrastructure/queue"
)

// WatchRecorder is the interface the handler uses to enqueue watch events.
type WatchRecorder interface {
	Enqueue(event queue.WatchEvent)
}

// ChannelHandler serves the read-side channel profile and watch history.
type ChannelHandler struct {
	accounts ports.AccountService
	recorder WatchRecorder
}

func NewChannelHandler(accounts ports.AccountService, recorder WatchRecorder) *ChannelHandler {
	return &ChannelHandler{accounts: accounts, recorder: recorder}
}

// Profile handles GET /channels/:username — the subscription aggregation.
func (h *ChannelHandler) Profile(c echo.Context) error {
	viewer, err := ctxUser(c)
	if err != nil {
		return err
	}

	username := c.Param("username")
	if username == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username is missing")
	}

	profile, err := h.accounts.ChannelProfile(c.Request().Context(), username, viewer.ID)
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, profile, "User channel fetched successfully")
}

// History handles GET /history — the watch-history aggregation.
func (h *ChannelHandler) History(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	entries, err := h.accounts.WatchHistory(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, entries, "Watch history fetched successfully")
}

// RecordWatch handles POST /history/:videoId — enqueues an async append and
// returns 202.
func (h *ChannelHandler) RecordWatch(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	videoID := c.Param("videoId")
	if videoID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "video id is missing")
	}

	h.recorder.Enqueue(queue.WatchEvent{UserID: user.ID, VideoID: videoID})
	return respond.OK(c, http.StatusAccepted, nil, "Watch event accepted")
}
