// Package domain defines the persistence models for lost-and-found items,
// claims, conversations, notifications, and badges. These types are mapped
// with GORM and shared across the repository and service layers.
package domain

import "time"

// Item is a "Lost" or "Found" report scoped to a tenant (university).
//
// Version is an optimistic concurrency token bumped by every workflow
// transition; guarded updates compare it to detect concurrent writers.
// HandoverCode is only set while a handover is in progress.
type Item struct {
	ID               string           `json:"id"                gorm:"type:char(36);primaryKey"`
	TenantID         string           `json:"tenant_id"         gorm:"type:varchar(64);not null;index:idx_items_tenant,priority:1"`
	OwnerID          string           `json:"owner_id"          gorm:"type:varchar(64);not null;index"`
	Status           ItemStatus       `json:"status"            gorm:"type:varchar(24);not null;index:idx_items_tenant,priority:2"`
	ModerationStatus ModerationStatus `json:"moderation_status" gorm:"type:varchar(24);not null;default:'pending';index:idx_items_tenant,priority:3"`
	Category         string           `json:"category"          gorm:"type:varchar(64);not null"`
	Title            string           `json:"title"             gorm:"type:varchar(255);not null"`
	Description      string           `json:"description"       gorm:"type:text"`
	Location         string           `json:"location"          gorm:"type:varchar(255)"`
	ContactInfo      string           `json:"contact_info,omitempty" gorm:"type:varchar(255)"`
	ImageURL         string           `json:"image_url,omitempty"    gorm:"type:text"`
	TextEmbedding    Embedding        `json:"-"`
	ImageEmbedding   Embedding        `json:"-"`
	Tags             []string         `json:"tags"              gorm:"type:text;serializer:json"`
	HandoverCode     *string          `json:"-"                 gorm:"type:varchar(8)"`
	Version          int              `json:"-"                 gorm:"not null;default:1"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Item.
func (Item) TableName() string { return "items" }

// Claim records a claimant's interest in a found item. FinderID is a copy of
// the item owner at claim time. At most one claim per item may be approved.
type Claim struct {
	ID                  string      `json:"id"                   gorm:"type:char(36);primaryKey"`
	ItemID              string      `json:"item_id"              gorm:"type:char(36);not null;index:idx_claims_item,priority:1"`
	ClaimantID          string      `json:"claimant_id"          gorm:"type:varchar(64);not null;index"`
	FinderID            string      `json:"finder_id"            gorm:"type:varchar(64);not null;index"`
	VerificationMessage string      `json:"verification_message" gorm:"type:text"`
	Status              ClaimStatus `json:"status"               gorm:"type:varchar(16);not null;default:'pending';index:idx_claims_item,priority:2;check:status IN ('pending','approved','rejected')"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`

	Item Item `json:"-" gorm:"foreignKey:ItemID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Claim.
func (Claim) TableName() string { return "claims" }

// Conversation is the chat thread between a finder and a claimant about one
// item. (item_id, finder_id, claimant_id) is unique.
type Conversation struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ItemID     string    `json:"item_id"     gorm:"type:char(36);not null;uniqueIndex:ux_conversation_parties,priority:1"`
	FinderID   string    `json:"finder_id"   gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_parties,priority:2;index"`
	ClaimantID string    `json:"claimant_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_parties,priority:3;index"`
	CreatedAt  time.Time `json:"created_at"`

	Item Item `json:"-" gorm:"foreignKey:ItemID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Participant reports whether userID is one of the two parties.
func (c Conversation) Participant(userID string) bool {
	return userID != "" && (c.FinderID == userID || c.ClaimantID == userID)
}

// Message is a single chat line within a conversation.
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	SenderID       string    `json:"sender_id"       gorm:"type:varchar(64);not null"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification is an append-only in-app notification. DedupeKey, when set,
// is unique and suppresses repeated notifications for the same event.
type Notification struct {
	ID          string           `json:"id"           gorm:"type:char(36);primaryKey"`
	RecipientID string           `json:"recipient_id" gorm:"type:varchar(64);not null;index:idx_notifications_recipient,priority:1"`
	TenantID    string           `json:"tenant_id"    gorm:"type:varchar(64)"`
	Message     string           `json:"message"      gorm:"type:text;not null"`
	Link        string           `json:"link,omitempty" gorm:"type:varchar(255)"`
	Kind        NotificationKind `json:"type"         gorm:"column:type;type:varchar(32);not null;default:'general'"`
	IsRead      bool             `json:"is_read"      gorm:"not null;default:false"`
	DedupeKey   *string          `json:"-"            gorm:"type:varchar(255);uniqueIndex:ux_notifications_dedupe"`
	CreatedAt   time.Time        `json:"created_at"   gorm:"index:idx_notifications_recipient,priority:2"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// Badge is an entry in the achievement catalog.
type Badge struct {
	ID          uint   `json:"id"          gorm:"primaryKey"`
	Name        string `json:"name"        gorm:"type:varchar(64);not null;uniqueIndex"`
	Description string `json:"description" gorm:"type:varchar(255)"`
	Icon        string `json:"icon"        gorm:"type:varchar(64)"`
}

// TableName returns the database table name for Badge.
func (Badge) TableName() string { return "badges" }

// UserBadge records that a user earned a badge. A user holds each badge at most once.
type UserBadge struct {
	ID       string    `json:"id"        gorm:"type:char(36);primaryKey"`
	UserID   string    `json:"user_id"   gorm:"type:varchar(64);not null;uniqueIndex:ux_user_badge,priority:1"`
	BadgeID  uint      `json:"badge_id"  gorm:"not null;uniqueIndex:ux_user_badge,priority:2"`
	TenantID string    `json:"tenant_id" gorm:"type:varchar(64)"`
	EarnedAt time.Time `json:"earned_at"`

	Badge Badge `json:"badge" gorm:"foreignKey:BadgeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserBadge.
func (UserBadge) TableName() string { return "user_badges" }

// ThankYouNote is a message left by a claimant for the finder once the item
// has been returned.
type ThankYouNote struct {
	ID         string    `json:"id"           gorm:"type:char(36);primaryKey"`
	ItemID     string    `json:"item_id"      gorm:"type:char(36);not null;uniqueIndex:ux_thank_you_item_from,priority:1"`
	FromUserID string    `json:"from_user_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_thank_you_item_from,priority:2"`
	ToUserID   string    `json:"to_user_id"   gorm:"type:varchar(64);not null;index"`
	Message    string    `json:"message"      gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for ThankYouNote.
func (ThankYouNote) TableName() string { return "thank_you_notes" }

// PushToken is a device token registered for push delivery.
type PushToken struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	Token     string    `json:"token"      gorm:"type:varchar(255);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for PushToken.
func (PushToken) TableName() string { return "push_tokens" }
