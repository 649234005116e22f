package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/http/middleware"
)

// SubmitClaimRequest is a claimant's proof of ownership.
type SubmitClaimRequest struct {
	Message string `json:"message" example:"It has a cracked corner and a blue case"`
}

// RespondClaimRequest approves or rejects a pending claim.
type RespondClaimRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject" example:"approve"`
}

// RespondClaimResponse reports the decision and its cascade.
type RespondClaimResponse struct {
	Claim          domain.Claim   `json:"claim"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Rejected       []domain.Claim `json:"rejected,omitempty"`
}

// ListClaimsResponse wraps claims on an item.
type ListClaimsResponse struct {
	Claims []domain.Claim `json:"claims"`
}

// SubmitClaim godoc
// @ID       submitClaim
// @Summary  Claim a found item
// @Tags     Claims
// @Accept   json
// @Produce  json
// @Param    id              path   string true  "Item ID"
// @Param    Idempotency-Key header string false "Retry key"
// @Param    body            body   handlers.SubmitClaimRequest true "Verification message"
// @Success  201 {object} domain.Claim
// @Failure  403 {object} handlers.ErrorResponse "Own item"
// @Failure  409 {object} handlers.ErrorResponse "Not claimable or duplicate"
// @Router   /items/{id}/claims [post]
func (h *Handlers) SubmitClaim(c *gin.Context) {
	var req SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if rid, replay := middleware.ReplayResourceID(c); replay {
		if cl := h.ownClaim(c, rid); cl != nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, cl)
			return
		}
	}
	cl, err := h.svc.Claims.Submit(c.Request.Context(), middleware.TenantID(c), middleware.UserID(c), c.Param("id"), req.Message)
	if err != nil {
		serviceError(c, err)
		return
	}
	h.recordIdempotency(c, cl.ID, http.StatusCreated)
	ok(c, http.StatusCreated, cl)
}

func (h *Handlers) ownClaim(c *gin.Context, claimID string) *domain.Claim {
	claims, err := h.svc.Claims.ListForItem(c.Request.Context(), middleware.TenantID(c), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return nil
	}
	for i := range claims {
		if claims[i].ID == claimID {
			return &claims[i]
		}
	}
	return nil
}

// ListClaims godoc
// @ID          listClaims
// @Summary     Claims on an item
// @Description The finder sees every claim; anyone else only their own.
// @Tags        Claims
// @Produce     json
// @Param       id path string true "Item ID"
// @Success     200 {object} handlers.ListClaimsResponse
// @Router      /items/{id}/claims [get]
func (h *Handlers) ListClaims(c *gin.Context) {
	claims, err := h.svc.Claims.ListForItem(c.Request.Context(), middleware.TenantID(c), middleware.UserID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListClaimsResponse{Claims: claims})
}

// RespondClaim godoc
// @ID          respondClaim
// @Summary     Approve or reject a claim (finder)
// @Description Approval rejects every other pending claim, moves the item to pending_return and opens the conversation.
// @Tags        Claims
// @Accept      json
// @Produce     json
// @Param       id   path string true "Claim ID"
// @Param       body body handlers.RespondClaimRequest true "Decision"
// @Success     200 {object} handlers.RespondClaimResponse
// @Failure     403 {object} handlers.ErrorResponse
// @Failure     409 {object} handlers.ErrorResponse
// @Router      /claims/{id}/respond [post]
func (h *Handlers) RespondClaim(c *gin.Context) {
	var req RespondClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `action must be "approve" or "reject"`)
		return
	}
	res, err := h.svc.Claims.Respond(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Action == "approve")
	if err != nil {
		serviceError(c, err)
		return
	}
	out := RespondClaimResponse{Claim: res.Claim, Rejected: res.Rejected}
	if res.Conversation != nil {
		out.ConversationID = res.Conversation.ID
	}
	ok(c, http.StatusOK, out)
}

// MarkRecovered godoc
// @ID       markRecovered
// @Summary  Confirm the item went back to its owner without a code
// @Tags     Handover
// @Produce  json
// @Param    id path string true "Item ID"
// @Success  200 {object} domain.Item
// @Failure  403 {object} handlers.ErrorResponse
// @Failure  409 {object} handlers.ErrorResponse
// @Router   /items/{id}/recovered [post]
func (h *Handlers) MarkRecovered(c *gin.Context) {
	it, err := h.svc.Claims.MarkRecovered(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// HandoverStartResponse returns the code the claimant shows the finder.
type HandoverStartResponse struct {
	Code string `json:"code" example:"0427"`
}

// CompleteHandoverRequest is the code read off the claimant's screen.
type CompleteHandoverRequest struct {
	Code string `json:"code" binding:"required" example:"0427"`
}

// ThankYouRequest is the note from the claimant to the finder.
type ThankYouRequest struct {
	Message string `json:"message" example:"Thank you so much!"`
}

// StartHandover godoc
// @ID       startHandover
// @Summary  Generate a handover code (approved claimant)
// @Tags     Handover
// @Produce  json
// @Param    id path string true "Item ID"
// @Success  200 {object} handlers.HandoverStartResponse
// @Failure  403 {object} handlers.ErrorResponse
// @Failure  409 {object} handlers.ErrorResponse
// @Router   /handover/items/{id}/start [post]
func (h *Handlers) StartHandover(c *gin.Context) {
	code, err := h.svc.Handover.Start(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, HandoverStartResponse{Code: code})
}

// CompleteHandover godoc
// @ID       completeHandover
// @Summary  Verify the handover code (finder)
// @Tags     Handover
// @Accept   json
// @Produce  json
// @Param    id   path string true "Item ID"
// @Param    body body handlers.CompleteHandoverRequest true "Code"
// @Success  200 {object} domain.Item
// @Failure  403 {object} handlers.ErrorResponse
// @Failure  409 {object} handlers.ErrorResponse
// @Failure  422 {object} handlers.ErrorResponse "Wrong code"
// @Router   /handover/items/{id}/complete [post]
func (h *Handlers) CompleteHandover(c *gin.Context) {
	var req CompleteHandoverRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code required")
		return
	}
	it, err := h.svc.Handover.Complete(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Code)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// SendThankYou godoc
// @ID       sendThankYou
// @Summary  Thank the finder of a recovered item (claimant, once)
// @Tags     Handover
// @Accept   json
// @Produce  json
// @Param    id   path string true "Item ID"
// @Param    body body handlers.ThankYouRequest true "Note"
// @Success  201 {object} domain.ThankYouNote
// @Failure  409 {object} handlers.ErrorResponse
// @Router   /handover/items/{id}/thank-you [post]
func (h *Handlers) SendThankYou(c *gin.Context) {
	var req ThankYouRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	note, err := h.svc.Handover.ThankYou(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Message)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, note)
}

// ListThankYouNotes godoc
// @ID       listThankYouNotes
// @Summary  Thank-you notes received by a user (self or admin)
// @Tags     Users
// @Produce  json
// @Param    id path string true "User ID"
// @Success  200 {array} domain.ThankYouNote
// @Failure  403 {object} handlers.ErrorResponse
// @Router   /users/{id}/thank-you-notes [get]
func (h *Handlers) ListThankYouNotes(c *gin.Context) {
	target := c.Param("id")
	if target != middleware.UserID(c) && middleware.Role(c) != middleware.RoleAdmin {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "notes are private")
		return
	}
	notes, err := h.svc.Handover.ListThankYouNotes(c.Request.Context(), target)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, notes)
}

// ListBadges godoc
// @ID       listBadges
// @Summary  Badges earned by a user
// @Tags     Users
// @Produce  json
// @Param    id path string true "User ID"
// @Success  200 {array} domain.UserBadge
// @Router   /users/{id}/badges [get]
func (h *Handlers) ListBadges(c *gin.Context) {
	badges, err := h.svc.Badges.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, badges)
}
