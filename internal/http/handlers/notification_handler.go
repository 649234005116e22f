package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/http/middleware"
)

// ListNotificationsResponse is a page of the inbox, newest first.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int64                 `json:"unread"`
	Pagination    Pagination            `json:"pagination"`
}

// MarkAllReadResponse reports how many notifications changed.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// PushTokenRequest registers a device.
type PushTokenRequest struct {
	Token string `json:"token" binding:"required" example:"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]"`
}

// ListNotifications godoc
// @ID       listNotifications
// @Summary  The caller's notifications
// @Tags     Notifications
// @Produce  json
// @Param    If-None-Match header string false "Return 304 if ETag matches"
// @Param    page          query  int    false "Page" minimum(1) default(1)
// @Param    page_size     query  int    false "Page size" minimum(1) maximum(100) default(20)
// @Success  200 {object} handlers.ListNotificationsResponse
// @Success  304 {string} string "Not Modified"
// @Router   /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	page, pageSize := pageParams(c)

	st, err := h.svc.Notifications.Stats(ctx, uid)
	if err != nil {
		serviceError(c, err)
		return
	}
	// Unread is part of the tag so marking read invalidates cached pages.
	etag := fmt.Sprintf(`W/"notif:%s:%d:%d:%d:%d:%d"`, uid, st.Count, st.Unread, unixNano(st.Latest), page, pageSize)
	if notModified(c, etag) {
		return
	}

	list, total, err := h.svc.Notifications.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: list,
		Unread:        st.Unread,
		Pagination:    pagination(page, pageSize, total),
	})
}

// MarkNotificationRead godoc
// @ID       markNotificationRead
// @Summary  Mark one notification read
// @Tags     Notifications
// @Param    id path string true "Notification ID"
// @Success  204 {string} string "No Content"
// @Failure  404 {object} handlers.ErrorResponse
// @Router   /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	if err := h.svc.Notifications.MarkRead(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// MarkAllNotificationsRead godoc
// @ID       markAllNotificationsRead
// @Summary  Mark every notification read
// @Tags     Notifications
// @Produce  json
// @Success  200 {object} handlers.MarkAllReadResponse
// @Router   /notifications/read-all [post]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.svc.Notifications.MarkAllRead(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, MarkAllReadResponse{Updated: n})
}

// RegisterPushToken godoc
// @ID       registerPushToken
// @Summary  Register a device for push notifications
// @Tags     Notifications
// @Accept   json
// @Param    body body handlers.PushTokenRequest true "Token"
// @Success  204 {string} string "No Content"
// @Failure  400 {object} handlers.ErrorResponse
// @Router   /push-tokens [post]
func (h *Handlers) RegisterPushToken(c *gin.Context) {
	var req PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token required")
		return
	}
	if err := h.svc.Notifications.RegisterPushToken(c.Request.Context(), middleware.UserID(c), req.Token); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

func unixNano(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}
