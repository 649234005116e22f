package domain

// ItemStatus is the Lost/Found lifecycle of a posted item.
type ItemStatus string

const (
	ItemLost            ItemStatus = "Lost"
	ItemFound           ItemStatus = "Found"
	ItemPendingHandover ItemStatus = "PendingHandover"
	ItemRecovered       ItemStatus = "Recovered"
)

// Valid reports whether s is one of the known item statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemLost, ItemFound, ItemPendingHandover, ItemRecovered:
		return true
	}
	return false
}

// ModerationStatus is the publication/workflow state of an item, tracked
// separately from its Lost/Found status.
type ModerationStatus string

const (
	ModerationPending       ModerationStatus = "pending"
	ModerationApproved      ModerationStatus = "approved"
	ModerationRejected      ModerationStatus = "rejected"
	ModerationPendingReturn ModerationStatus = "pending_return"
	ModerationRecovered     ModerationStatus = "recovered"
)

// Valid reports whether s is one of the known moderation statuses.
func (s ModerationStatus) Valid() bool {
	switch s {
	case ModerationPending, ModerationApproved, ModerationRejected, ModerationPendingReturn, ModerationRecovered:
		return true
	}
	return false
}

// Moderatable reports whether an admin may set an item to s directly.
// pending_return and recovered are only reachable through the claim workflow.
func (s ModerationStatus) Moderatable() bool {
	return s == ModerationPending || s == ModerationApproved || s == ModerationRejected
}

// ClaimStatus is the state of a claim on a found item.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// Badge names in the catalog.
const (
	BadgeFirstPost     = "First Post"
	BadgeGoodSamaritan = "Good Samaritan"
	BadgeFirstReturn   = "First Return"
	BadgeCampusHero    = "Campus Hero"
)
