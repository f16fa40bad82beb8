package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/monitoring"
	"github.com/veloticket/stagegate/internal/repository"
	"github.com/veloticket/stagegate/internal/signature"
)

// Item is one line of a purchase order.
type Item struct {
	Type     domain.TicketType
	Quantity int
}

type ConcertStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Concert, error)
	GetKeyPair(ctx context.Context, id uuid.UUID) (*domain.ConcertKeyPair, error)
}

type TicketStore interface {
	CountActiveByType(ctx context.Context, concertID, userID uuid.UUID, t domain.TicketType) (int, error)
	IssueOrder(ctx context.Context, concertID, userID uuid.UUID, tickets []domain.Ticket, caps map[domain.TicketType]int) error
}

type ConcertCache interface {
	InvalidateConcert(ctx context.Context, concertID string) error
}

type Service struct {
	concerts ConcertStore
	tickets  TicketStore
	cache    ConcertCache
}

func New(concerts ConcertStore, tickets TicketStore, cache ConcertCache) *Service {
	return &Service{
		concerts: concerts,
		tickets:  tickets,
		cache:    cache,
	}
}

// CreateOrder validates a purchase and mints one signed ticket per unit.
//
// The early inventory and cap checks give buyers precise errors; the
// authoritative re-checks run inside the store's serializable transaction, so
// concurrent orders cannot oversell or exceed the per-user caps.
//
// Parameters:
//   - ctx: request-scoped context.
//   - concertID: concert being purchased.
//   - userID: buying user.
//   - items: requested quantities per ticket type.
//
// Returns:
//   - []domain.Ticket: the issued tickets, signatures and QR payloads included.
//   - error: issuance.ErrConcertNotFound, ErrConcertNotOnSale, ErrEmptyOrder,
//     ErrInsufficientTickets, ErrPurchaseLimit, ErrInvalidOrder.
func (s *Service) CreateOrder(
	ctx context.Context,
	concertID, userID uuid.UUID,
	items []Item,
) ([]domain.Ticket, error) {
	const op = "service.issuance.CreateOrder"

	if concertID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrder)
	}

	requested := make(map[domain.TicketType]int)
	total := 0
	for _, it := range items {
		if it.Type != domain.TicketAdult && it.Type != domain.TicketChild {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrder)
		}
		if it.Quantity < 0 {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidOrder)
		}
		requested[it.Type] += it.Quantity
		total += it.Quantity
	}

	concert, err := s.concerts.Get(ctx, concertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrConcertNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if concert.Status != domain.ConcertUpcoming {
		return nil, fmt.Errorf("%s: %w", op, ErrConcertNotOnSale)
	}

	if total <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyOrder)
	}

	if concert.SoldTickets+total > concert.TotalTickets {
		return nil, fmt.Errorf("%s: %w", op, ErrInsufficientTickets)
	}

	caps := map[domain.TicketType]int{
		domain.TicketAdult: concert.MaxAdult,
		domain.TicketChild: concert.MaxChild,
	}

	for typ, n := range requested {
		if n == 0 {
			continue
		}
		owned, err := s.tickets.CountActiveByType(ctx, concertID, userID, typ)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if owned+n > caps[typ] {
			return nil, fmt.Errorf("%s: %w", op, ErrPurchaseLimit)
		}
	}

	// Signing with a key that fails to open is a configuration fault and
	// aborts the order; no ticket is ever signed with unverified material.
	keys, err := s.concerts.GetKeyPair(ctx, concertID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tickets, err := s.buildTickets(concert, userID, items, keys.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.tickets.IssueOrder(ctx, concertID, userID, tickets, caps); err != nil {
		switch {
		case errors.Is(err, repository.ErrSoldOut):
			return nil, fmt.Errorf("%s: %w", op, ErrInsufficientTickets)
		case errors.Is(err, repository.ErrPurchaseLimit):
			return nil, fmt.Errorf("%s: %w", op, ErrPurchaseLimit)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		_ = s.cache.InvalidateConcert(ctx, concertID.String())
	}

	for typ, n := range requested {
		if n > 0 {
			monitoring.TicketIssued(string(typ), n)
		}
	}

	return tickets, nil
}

// buildTickets signs each unit in order. The loop is deliberately sequential:
// every unit gets a strictly increasing millisecond timestamp so no two units
// of the same order share a canonical message.
func (s *Service) buildTickets(
	concert *domain.Concert,
	userID uuid.UUID,
	items []Item,
	privateKeyPEM string,
) ([]domain.Ticket, error) {
	var (
		tickets []domain.Ticket
		lastTs  int64
	)

	for _, it := range items {
		price := concert.AdultPrice
		if it.Type == domain.TicketChild {
			price = concert.ChildPrice
		}

		for i := 0; i < it.Quantity; i++ {
			ts := time.Now().UnixMilli()
			if ts <= lastTs {
				ts = lastTs + 1
			}
			lastTs = ts

			id := uuid.New()
			msg := signature.CanonicalMessage(
				id.String(), concert.ID.String(), userID.String(), ts,
			)

			sig, err := signature.Sign(msg, privateKeyPEM)
			if err != nil {
				return nil, err
			}

			qr, err := signature.BuildQRPayload(id.String(), sig, ts)
			if err != nil {
				return nil, err
			}

			tickets = append(tickets, domain.Ticket{
				ID:         id,
				ConcertID:  concert.ID,
				UserID:     userID,
				Type:       it.Type,
				Price:      price,
				Status:     domain.TicketValid,
				Signature:  sig,
				QRCodeData: qr,
				IssuedAt:   time.UnixMilli(ts),
			})
		}
	}

	return tickets, nil
}
