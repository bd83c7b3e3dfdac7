package storage

import "time"

// Kind discriminates the three delivery topologies a message can have.
type Kind string

const (
	KindBroadcast Kind = "broadcast"
	KindGroup     Kind = "group"
	KindPrivate   Kind = "private"
)

// Valid reports whether k is one of the three recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindBroadcast, KindGroup, KindPrivate:
		return true
	}
	return false
}

// Status is the delivery-status lifecycle of a message.
// Transitions are forward-only: sent -> delivered -> read.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Roles of a user inside a group.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Email        string     `json:"email,omitempty"`
	Online       bool       `json:"is_online"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"group_name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	Members     []User    `json:"members,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type GroupMember struct {
	GroupID  int64     `json:"group_id"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message is a persisted message row. Exactly one of Receiver/Group is
// set for private/group kinds; both are nil for broadcast. Content and
// hash are immutable after append; only status, the offline flag and
// the transition timestamps ever change.
type Message struct {
	ID          int64      `json:"id"`
	Sender      int64      `json:"sender_id"`
	SenderName  string     `json:"sender_name,omitempty"`
	Receiver    *int64     `json:"receiver_id,omitempty"`
	Group       *int64     `json:"group_id,omitempty"`
	Content     string     `json:"content"`
	ContentHash string     `json:"content_hash"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	Offline     bool       `json:"is_offline"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}
