// Notification HTTP handlers.
//
//   - GET  /notifications                (newest first; marks read unless mark_read=false)
//   - GET  /notifications/unread_count
//   - POST /notifications/read           (mark all read)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/utils"
)

// NotificationListResponse is the caller's recent notifications.
type NotificationListResponse struct {
	Items []domain.Notification `json:"items"`
}

// MarkReadResponse reports how many notifications changed state.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       limit      query     int   false  "Max items"  minimum(1) maximum(50) default(50)
// @Param       mark_read  query     bool  false  "Mark returned notifications read"  default(true)
// @Success     200        {object}  handlers.NotificationListResponse
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	limit := utils.Limit(c.Query("limit"), services.DefaultNotificationLimit, services.MaxNotificationLimit)
	markRead := utils.ParseBoolDefault(c.Query("mark_read"), true)
	items, err := h.notifications.List(c.Request.Context(), userID(c), limit, markRead)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, NotificationListResponse{Items: items})
}

// UnreadNotifications godoc
// @ID          unreadNotifications
// @Summary     Count unread notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.CountResponse
// @Router      /notifications/unread_count [get]
func (h *Handlers) UnreadNotifications(c *gin.Context) {
	n, err := h.notifications.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CountResponse{Count: n})
}

// MarkNotificationsRead godoc
// @ID          markNotificationsRead
// @Summary     Mark all notifications read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MarkReadResponse
// @Router      /notifications/read [post]
func (h *Handlers) MarkNotificationsRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Updated: n})
}
