package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/http/middleware"
)

// OpenConversationRequest asks the owner of an item about it.
type OpenConversationRequest struct {
	ItemID string `json:"item_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// SendMessageRequest is one chat line.
type SendMessageRequest struct {
	Content string `json:"content" example:"Can we meet at the library at 3pm?"`
}

// ListMessagesResponse is a page of a conversation, oldest first.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// OpenConversation godoc
// @ID       openConversation
// @Summary  Open (or reuse) the conversation about an item with its owner
// @Tags     Conversations
// @Accept   json
// @Produce  json
// @Param    body body handlers.OpenConversationRequest true "Item"
// @Success  200 {object} domain.Conversation
// @Failure  400 {object} handlers.ErrorResponse "Own item"
// @Failure  404 {object} handlers.ErrorResponse
// @Router   /conversations [post]
func (h *Handlers) OpenConversation(c *gin.Context) {
	var req OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "item_id required")
		return
	}
	conv, err := h.svc.Conversations.Open(c.Request.Context(), middleware.TenantID(c), middleware.UserID(c), req.ItemID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// ListConversations godoc
// @ID       listConversations
// @Summary  Conversations the caller takes part in
// @Tags     Conversations
// @Produce  json
// @Success  200 {array} domain.Conversation
// @Router   /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	convs, err := h.svc.Conversations.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, convs)
}

// ListMessages godoc
// @ID       listMessages
// @Summary  Messages of a conversation (participants only)
// @Tags     Conversations
// @Produce  json
// @Param    id            path   string true  "Conversation ID"
// @Param    If-None-Match header string false "Return 304 if ETag matches"
// @Param    page          query  int    false "Page" minimum(1) default(1)
// @Param    page_size     query  int    false "Page size" minimum(1) maximum(100) default(20)
// @Success  200 {object} handlers.ListMessagesResponse
// @Success  304 {string} string "Not Modified"
// @Failure  403 {object} handlers.ErrorResponse
// @Failure  404 {object} handlers.ErrorResponse
// @Router   /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	uid, convID := middleware.UserID(c), c.Param("id")
	page, pageSize := pageParams(c)

	count, latest, err := h.svc.Conversations.MessageStats(ctx, uid, convID)
	if err != nil {
		serviceError(c, err)
		return
	}
	etag := fmt.Sprintf(`W/"msgs:%s:%d:%d:%d:%d"`, convID, count, unixNano(latest), page, pageSize)
	if notModified(c, etag) {
		return
	}

	msgs, total, err := h.svc.Conversations.ListMessages(ctx, uid, convID, page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: msgs, Pagination: pagination(page, pageSize, total)})
}

// SendMessage godoc
// @ID       sendMessage
// @Summary  Post a message; the other party is notified
// @Tags     Conversations
// @Accept   json
// @Produce  json
// @Param    id   path string true "Conversation ID"
// @Param    body body handlers.SendMessageRequest true "Message"
// @Success  201 {object} domain.Message
// @Failure  400 {object} handlers.ErrorResponse
// @Failure  403 {object} handlers.ErrorResponse
// @Router   /conversations/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	msg, err := h.svc.Conversations.Send(c.Request.Context(), middleware.UserID(c), c.Param("id"), sanitizeContent(req.Content))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, msg)
}

var blankLinesRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes line endings and collapses runs of blank lines.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(blankLinesRE.ReplaceAllString(s, "\n\n"))
}
