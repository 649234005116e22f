package domain

// NotificationKind is the closed set of notification types the platform emits.
// Unknown values read from storage decode as KindGeneral.
type NotificationKind string

const (
	KindMatch         NotificationKind = "match"
	KindClaim         NotificationKind = "claim"
	KindClaimApproved NotificationKind = "claim_approved"
	KindClaimRejected NotificationKind = "claim_rejected"
	KindHandover      NotificationKind = "handover"
	KindRecovered     NotificationKind = "recovered"
	KindModeration    NotificationKind = "moderation"
	KindBadge         NotificationKind = "badge"
	KindMessage       NotificationKind = "message"
	KindGeneral       NotificationKind = "general"
)

// PushPayload describes how a kind is rendered for the push transport.
type PushPayload struct {
	Title     string
	ChannelID string
	Priority  string
}

var pushPayloads = map[NotificationKind]PushPayload{
	KindMatch:         {Title: "Potential match found", ChannelID: "matches", Priority: "high"},
	KindClaim:         {Title: "New claim on your item", ChannelID: "claims", Priority: "high"},
	KindClaimApproved: {Title: "Claim approved", ChannelID: "claims", Priority: "high"},
	KindClaimRejected: {Title: "Claim update", ChannelID: "claims", Priority: "default"},
	KindHandover:      {Title: "Handover update", ChannelID: "handover", Priority: "high"},
	KindRecovered:     {Title: "Item recovered", ChannelID: "handover", Priority: "default"},
	KindModeration:    {Title: "Post update", ChannelID: "moderation", Priority: "default"},
	KindBadge:         {Title: "New badge earned", ChannelID: "achievements", Priority: "default"},
	KindMessage:       {Title: "New message", ChannelID: "messages", Priority: "high"},
	KindGeneral:       {Title: "CampusTrace", ChannelID: "default", Priority: "default"},
}

// ParseNotificationKind maps a stored string to a kind, falling back to KindGeneral.
func ParseNotificationKind(s string) NotificationKind {
	k := NotificationKind(s)
	if _, ok := pushPayloads[k]; ok {
		return k
	}
	return KindGeneral
}

// Push returns the push rendering for k.
func (k NotificationKind) Push() PushPayload {
	if p, ok := pushPayloads[k]; ok {
		return p
	}
	return pushPayloads[KindGeneral]
}
