package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ConcertStatus string

const (
	ConcertUpcoming  ConcertStatus = "upcoming"
	ConcertOngoing   ConcertStatus = "ongoing"
	ConcertCompleted ConcertStatus = "completed"
)

type TicketStatus string

const (
	TicketValid    TicketStatus = "valid"
	TicketUsed     TicketStatus = "used"
	TicketRefunded TicketStatus = "refunded"
)

type TicketType string

const (
	TicketAdult TicketType = "adult"
	TicketChild TicketType = "child"
)

type Concert struct {
	ID           uuid.UUID
	Title        string
	Venue        string
	ScheduledAt  time.Time
	Status       ConcertStatus
	TotalTickets int
	SoldTickets  int
	AdultPrice   decimal.Decimal
	ChildPrice   decimal.Decimal
	MaxAdult     int // per-user cap, adult tickets
	MaxChild     int // per-user cap, child tickets
	PublicKey    string
	CreatedAt    time.Time
}

// ConcertKeyPair carries the concert's signing material. PrivateKeyPEM is only
// populated on the issuance path, after the at-rest ciphertext has been opened.
type ConcertKeyPair struct {
	ConcertID     uuid.UUID
	PublicKeyPEM  string
	PrivateKeyPEM string
}

type Ticket struct {
	ID         uuid.UUID
	ConcertID  uuid.UUID
	UserID     uuid.UUID
	Type       TicketType
	Price      decimal.Decimal // copied from the concert at issuance
	Status     TicketStatus
	Signature  string // hex-encoded ECDSA signature over the canonical message
	QRCodeData string // exact JSON handed to the scanner; also the verification lookup key
	IssuedAt   time.Time
	UsedAt     *time.Time
	RefundedAt *time.Time
}

type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
}

// VerificationRecord is the append-only audit entry written for every scan of
// a known ticket, successful or not.
type VerificationRecord struct {
	ID          uuid.UUID
	TicketID    uuid.UUID
	InspectorID uuid.UUID
	Location    string
	OK          bool
	Signature   string
	VerifiedAt  time.Time
}

// VerificationRecordView joins display fields for the inspection history.
type VerificationRecordView struct {
	VerificationRecord
	ConcertTitle string
	Username     string
}

type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
)

// RefundRequest lives in the key-value store, keyed by ticket ID. The snapshot
// fields are denormalized at submit time so review listings stay stable even
// if the underlying ticket changes afterwards.
type RefundRequest struct {
	TicketID    uuid.UUID    `json:"ticket_id"`
	UserID      uuid.UUID    `json:"user_id"`
	ConcertID   uuid.UUID    `json:"concert_id"`
	Reason      string       `json:"reason"`
	Status      RefundStatus `json:"status"`
	RequestedAt time.Time    `json:"requested_at"`

	ConcertTitle string          `json:"concert_title"`
	Username     string          `json:"username"`
	UserEmail    string          `json:"user_email"`
	TicketType   TicketType      `json:"ticket_type"`
	TicketPrice  decimal.Decimal `json:"ticket_price"`

	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReviewerID *uuid.UUID `json:"reviewer_id,omitempty"`
	ReviewNote string     `json:"review_note,omitempty"`
}

type VerifyResult struct {
	Valid        bool
	TicketID     uuid.UUID
	TicketType   TicketType
	TicketStatus TicketStatus
	ConcertTitle string
	Username     string
	VerifiedAt   time.Time
}
