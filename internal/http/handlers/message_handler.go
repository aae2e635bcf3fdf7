// Direct message HTTP handlers.
//
//   - GET  /messages/conversations   (one entry per counterpart)
//   - GET  /messages/unread_count
//   - GET  /messages/{user_id}       (thread, marks incoming as read)
//   - POST /messages/{user_id}       (send, idempotent)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/utils"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for a direct message.
type SendMessageRequest struct {
	Content string `json:"content" example:"Are we still on for Friday?"`
}

// ConversationsResponse lists conversations, most recent first.
type ConversationsResponse struct {
	Items []domain.Conversation `json:"items"`
}

// ThreadResponse is a page of a thread in ascending time order.
type ThreadResponse struct {
	Items []domain.Message `json:"items"`
	Limit int              `json:"limit"`
}

// CountResponse carries an unread counter.
type CountResponse struct {
	Count int64 `json:"count"`
}

//
// Handlers
//

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ConversationsResponse
// @Router      /messages/conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	items, err := h.messages.Conversations(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ConversationsResponse{Items: items})
}

// UnreadMessages godoc
// @ID          unreadMessages
// @Summary     Count unread direct messages
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.CountResponse
// @Router      /messages/unread_count [get]
func (h *Handlers) UnreadMessages(c *gin.Context) {
	n, err := h.messages.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CountResponse{Count: n})
}

// GetThread godoc
// @ID          getThread
// @Summary     Read a conversation
// @Description Returns messages with the user ascending by time and marks incoming ones read.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       user_id  path      string  true   "Counterpart profile ID"  format(uuid)
// @Param       limit    query     int     false  "Page size"  minimum(1) maximum(200) default(50)
// @Param       before     query     string  false  "Only messages older than this RFC 3339 time"
// @Param       before_id  query     string  false  "ID of the oldest message already seen; breaks ties on before"
// @Success     200      {object}  handlers.ThreadResponse
// @Failure     400      {object}  handlers.ErrorResponse
// @Failure     404      {object}  handlers.ErrorResponse
// @Router      /messages/{user_id} [get]
func (h *Handlers) GetThread(c *gin.Context) {
	limit := utils.Limit(c.Query("limit"), services.DefaultThreadLimit, services.MaxThreadLimit)
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		before = &t
	}
	beforeID := c.Query("before_id")
	if beforeID != "" && before == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "before_id requires before")
		return
	}
	items, err := h.messages.Thread(c.Request.Context(), userID(c), c.Param("user_id"), limit, before, beforeID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ThreadResponse{Items: items, Limit: limit})
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a direct message
// @Description Supports idempotency via the Idempotency-Key header.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                       false  "Idempotency key for safe retries"
// @Param       user_id          path      string                       true   "Receiver profile ID"  format(uuid)
// @Param       body             body      handlers.SendMessageRequest  true   "Message"
// @Success     201              {object}  domain.Message
// @Failure     400              {object}  handlers.ErrorResponse
// @Failure     404              {object}  handlers.ErrorResponse
// @Router      /messages/{user_id} [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	if id, found := h.replayedID(c); found {
		m, err := h.messages.Get(ctx, userID(c), id)
		if err != nil {
			failErr(c, err)
			return
		}
		markReplayed(c)
		ok(c, http.StatusCreated, m)
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	m, err := h.messages.Send(ctx, userID(c), c.Param("user_id"), req.Content)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, m.ID, http.StatusCreated)
	ok(c, http.StatusCreated, m)
}
