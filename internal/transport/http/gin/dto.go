package httpgin

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloticket/stagegate/internal/domain"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type OrderItemInput struct {
	Type     string `json:"type" binding:"required,oneof=adult child"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	ConcertID string           `json:"concert_id" binding:"required,uuid"`
	Items     []OrderItemInput `json:"items" binding:"required,min=1,dive"`
}

type TicketResponse struct {
	TicketID   string          `json:"ticket_id"`
	Type       string          `json:"type"`
	Price      decimal.Decimal `json:"price"`
	Status     string          `json:"status"`
	QRCodeData string          `json:"qr_code_data"`
	IssuedAt   time.Time       `json:"issued_at"`
}

type CreateOrderResponse struct {
	Tickets []TicketResponse `json:"tickets"`
}

type VerifyRequest struct {
	QRData   string `json:"qr_data" binding:"required"`
	Location string `json:"location"`
}

type VerifyResponse struct {
	Valid        bool      `json:"valid"`
	TicketID     string    `json:"ticket_id"`
	TicketType   string    `json:"ticket_type"`
	TicketStatus string    `json:"ticket_status"`
	ConcertTitle string    `json:"concert_title"`
	Username     string    `json:"username"`
	VerifiedAt   time.Time `json:"verified_at"`
}

type RefundRequestInput struct {
	Reason string `json:"reason" binding:"required"`
}

type ReviewRefundRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Note     string `json:"note"`
}

type CreateConcertRequest struct {
	Title        string          `json:"title" binding:"required"`
	Venue        string          `json:"venue"`
	ScheduledAt  string          `json:"scheduled_at" binding:"required"`
	TotalTickets int             `json:"total_tickets" binding:"required,gt=0"`
	AdultPrice   decimal.Decimal `json:"adult_price"`
	ChildPrice   decimal.Decimal `json:"child_price"`
	MaxAdult     int             `json:"max_adult"`
	MaxChild     int             `json:"max_child"`
}

type ConcertResponse struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Venue        string          `json:"venue"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	Status       string          `json:"status"`
	TotalTickets int             `json:"total_tickets"`
	SoldTickets  int             `json:"sold_tickets"`
	AdultPrice   decimal.Decimal `json:"adult_price"`
	ChildPrice   decimal.Decimal `json:"child_price"`
	PublicKey    string          `json:"public_key"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func toTicketResponse(t domain.Ticket) TicketResponse {
	return TicketResponse{
		TicketID:   t.ID.String(),
		Type:       string(t.Type),
		Price:      t.Price,
		Status:     string(t.Status),
		QRCodeData: t.QRCodeData,
		IssuedAt:   t.IssuedAt,
	}
}

func toConcertResponse(c *domain.Concert) ConcertResponse {
	return ConcertResponse{
		ID:           c.ID.String(),
		Title:        c.Title,
		Venue:        c.Venue,
		ScheduledAt:  c.ScheduledAt,
		Status:       string(c.Status),
		TotalTickets: c.TotalTickets,
		SoldTickets:  c.SoldTickets,
		AdultPrice:   c.AdultPrice,
		ChildPrice:   c.ChildPrice,
		PublicKey:    c.PublicKey,
	}
}

func toVerifyResponse(r *domain.VerifyResult) VerifyResponse {
	return VerifyResponse{
		Valid:        r.Valid,
		TicketID:     r.TicketID.String(),
		TicketType:   string(r.TicketType),
		TicketStatus: string(r.TicketStatus),
		ConcertTitle: r.ConcertTitle,
		Username:     r.Username,
		VerifiedAt:   r.VerifiedAt,
	}
}
