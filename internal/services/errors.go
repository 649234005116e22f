// Package services defines the business logic for lost-and-found items,
// matching, claims, handovers, badges, conversations, and notifications.
// This file centralizes the service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes happens in the
// handler layer.
package services

import "errors"

// Item errors.
var (
	// ErrItemNotFound indicates that the requested item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrInvalidItem wraps validation failures on item input.
	ErrInvalidItem = errors.New("invalid item")

	// ErrNotItemOwner is returned when the caller does not own the item.
	ErrNotItemOwner = errors.New("caller does not own this item")

	// ErrItemNotLost is returned when matching is requested for an item whose
	// status is not Lost.
	ErrItemNotLost = errors.New("item is not a lost report")

	// ErrInvalidModeration is returned for moderation statuses an admin may
	// not set directly.
	ErrInvalidModeration = errors.New("invalid moderation status")

	// ErrItemInWorkflow is returned when moderating an item that is already
	// in the return workflow.
	ErrItemInWorkflow = errors.New("item is in the return workflow")
)

// Matching errors.
var (
	// ErrThresholdRequired is returned when a match query has no threshold.
	ErrThresholdRequired = errors.New("match threshold must be specified")

	// ErrImageRequired is returned by image search without an image.
	ErrImageRequired = errors.New("image is required")
)

// Claim and handover errors.
var (
	ErrClaimNotFound    = errors.New("claim not found")
	ErrItemNotClaimable = errors.New("item is not open for claims")
	ErrSelfClaim        = errors.New("cannot claim your own item")
	ErrDuplicateClaim   = errors.New("a pending claim already exists")
	ErrNotFinder        = errors.New("only the finder may do this")
	ErrNotClaimant      = errors.New("only the approved claimant may do this")
	ErrNotParticipant   = errors.New("caller is not a party to this item")
	ErrClaimNotPending  = errors.New("claim is no longer pending")

	// ErrConcurrentUpdate is returned when another request changed the same
	// item or claim first. Callers may retry.
	ErrConcurrentUpdate = errors.New("concurrent update, please retry")

	ErrItemNotAwaitingReturn = errors.New("item is not awaiting return")
	ErrHandoverNotStarted    = errors.New("handover has not been started")
	ErrInvalidHandoverCode   = errors.New("invalid handover code")
	ErrNotRecovered          = errors.New("item has not been recovered yet")
	ErrDuplicateThankYou     = errors.New("thank-you note already sent")
)

// Conversation, notification and badge errors.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot open a conversation about your own item")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrMessageTooLong       = errors.New("message too long")

	ErrNotificationNotFound = errors.New("notification not found")
	ErrEmptyPushToken       = errors.New("push token is empty")

	ErrBadgeNotFound = errors.New("badge not found")
)
