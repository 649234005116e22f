package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campustrace-backend/internal/services"
)

// Stable machine-readable error codes. Clients branch on these, never on
// the message text.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	ErrCodeValidation       = "validation_failed"
	ErrCodeSelfClaim        = "self_claim"
	ErrCodeNotClaimable     = "not_claimable"
	ErrCodeDuplicateClaim   = "duplicate_claim"
	ErrCodeClaimNotPending  = "claim_not_pending"
	ErrCodeConcurrentUpdate = "concurrent_update"
	ErrCodeNotAwaiting      = "not_awaiting_return"
	ErrCodeNoHandover       = "handover_not_started"
	ErrCodeBadHandoverCode  = "invalid_handover_code"
	ErrCodeNotRecovered     = "not_recovered"
	ErrCodeDuplicateThanks  = "duplicate_thank_you"
	ErrCodeInWorkflow       = "item_in_workflow"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var serviceErrors = []errorMapping{
	{services.ErrItemNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrClaimNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrConversationNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrNotificationNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrBadgeNotFound, http.StatusNotFound, ErrCodeNotFound},

	{services.ErrInvalidItem, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrInvalidModeration, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrThresholdRequired, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrImageRequired, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrMessageTooLong, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrEmptyPushToken, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrItemNotLost, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrSelfConversation, http.StatusBadRequest, ErrCodeBadRequest},

	{services.ErrNotItemOwner, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrNotFinder, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrNotClaimant, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrNotParticipant, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrSelfClaim, http.StatusForbidden, ErrCodeSelfClaim},

	{services.ErrItemNotClaimable, http.StatusConflict, ErrCodeNotClaimable},
	{services.ErrDuplicateClaim, http.StatusConflict, ErrCodeDuplicateClaim},
	{services.ErrClaimNotPending, http.StatusConflict, ErrCodeClaimNotPending},
	{services.ErrConcurrentUpdate, http.StatusConflict, ErrCodeConcurrentUpdate},
	{services.ErrItemNotAwaitingReturn, http.StatusConflict, ErrCodeNotAwaiting},
	{services.ErrHandoverNotStarted, http.StatusConflict, ErrCodeNoHandover},
	{services.ErrNotRecovered, http.StatusConflict, ErrCodeNotRecovered},
	{services.ErrDuplicateThankYou, http.StatusConflict, ErrCodeDuplicateThanks},
	{services.ErrItemInWorkflow, http.StatusConflict, ErrCodeInWorkflow},

	{services.ErrInvalidHandoverCode, http.StatusUnprocessableEntity, ErrCodeBadHandoverCode},
}

// serviceError writes the response for an error returned by a service.
// Unknown errors are 500s; their text is logged but not returned.
func serviceError(c *gin.Context, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			fail(c, m.status, m.code, err.Error())
			return
		}
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
}
