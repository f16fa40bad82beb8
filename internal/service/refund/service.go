package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/monitoring"
	"github.com/veloticket/stagegate/internal/notifier"
	"github.com/veloticket/stagegate/internal/repository"
)

type TicketStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	RefundTicket(ctx context.Context, ticketID, concertID uuid.UUID) error
}

type ConcertStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Concert, error)
}

type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Queue is the key-value half of the workflow: request bodies plus the
// per-status ordered indexes.
type Queue interface {
	Submit(ctx context.Context, req *domain.RefundRequest) error
	Get(ctx context.Context, ticketID uuid.UUID) (*domain.RefundRequest, error)
	ListByStatus(ctx context.Context, status domain.RefundStatus) ([]domain.RefundRequest, error)
	Complete(ctx context.Context, req *domain.RefundRequest) error
}

type ConcertCache interface {
	InvalidateConcert(ctx context.Context, concertID string) error
}

type Service struct {
	tickets  TicketStore
	concerts ConcertStore
	users    UserStore
	queue    Queue
	notify   notifier.Notifier
	cache    ConcertCache
	logger   *slog.Logger
}

func New(
	tickets TicketStore,
	concerts ConcertStore,
	users UserStore,
	queue Queue,
	notify notifier.Notifier,
	cache ConcertCache,
	logger *slog.Logger,
) *Service {
	return &Service{
		tickets:  tickets,
		concerts: concerts,
		users:    users,
		queue:    queue,
		notify:   notify,
		cache:    cache,
		logger:   logger,
	}
}

// RequestRefund files a refund request for a ticket the caller owns.
//
// The duplicate check here is a direct key lookup for a precise error; the
// store's submit script re-checks atomically, so racing submissions cannot
// both land.
//
// Returns:
//   - error: refund.ErrTicketNotFound, ErrNotTicketOwner, ErrTicketNotValid,
//     ErrConcertStarted, ErrDuplicateRequest.
func (s *Service) RequestRefund(ctx context.Context, ticketID, userID uuid.UUID, reason string) error {
	const op = "service.refund.RequestRefund"

	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if ticket.UserID != userID {
		return fmt.Errorf("%s: %w", op, ErrNotTicketOwner)
	}

	if ticket.Status != domain.TicketValid {
		return fmt.Errorf("%s: %w", op, ErrTicketNotValid)
	}

	concert, err := s.concerts.Get(ctx, ticket.ConcertID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !concert.ScheduledAt.After(time.Now()) {
		return fmt.Errorf("%s: %w", op, ErrConcertStarted)
	}

	if existing, err := s.queue.Get(ctx, ticketID); err == nil &&
		existing.Status == domain.RefundPending {
		return fmt.Errorf("%s: %w", op, ErrDuplicateRequest)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req := &domain.RefundRequest{
		TicketID:     ticketID,
		UserID:       userID,
		ConcertID:    ticket.ConcertID,
		Reason:       reason,
		Status:       domain.RefundPending,
		RequestedAt:  time.Now(),
		ConcertTitle: concert.Title,
		Username:     user.Username,
		UserEmail:    user.Email,
		TicketType:   ticket.Type,
		TicketPrice:  ticket.Price,
	}

	if err := s.queue.Submit(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("%s: %w", op, ErrDuplicateRequest)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	monitoring.RefundRequested()

	return nil
}

// ListRefundRequests reads the index for one status and filters in memory by
// concert and user. Each index is operationally small and bounded by TTL
// expiry, so the per-key loads stay cheap.
func (s *Service) ListRefundRequests(
	ctx context.Context,
	status domain.RefundStatus,
	concertID, userID *uuid.UUID,
) ([]domain.RefundRequest, error) {
	const op = "service.refund.ListRefundRequests"

	reqs, err := s.queue.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrListFailed)
	}

	out := reqs[:0]
	for _, r := range reqs {
		if concertID != nil && r.ConcertID != *concertID {
			continue
		}
		if userID != nil && r.UserID != *userID {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})

	return out, nil
}

// ReviewRefund decides a pending request.
//
// Approval re-checks that the ticket is still valid at review time — it may
// have been scanned at the gate or refunded since the request was filed — and
// releases the inventory unit together with the status flip. Rejection
// requires a note and notifies the requester best-effort.
//
// Returns:
//   - error: refund.ErrRequestNotFound, ErrAlreadyReviewed, ErrNoteRequired,
//     ErrTicketNotValid.
func (s *Service) ReviewRefund(
	ctx context.Context,
	ticketID, reviewerID uuid.UUID,
	approved bool,
	note string,
) error {
	const op = "service.refund.ReviewRefund"

	req, err := s.queue.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrRequestNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if req.Status != domain.RefundPending {
		return fmt.Errorf("%s: %w", op, ErrAlreadyReviewed)
	}

	if !approved && strings.TrimSpace(note) == "" {
		return fmt.Errorf("%s: %w", op, ErrNoteRequired)
	}

	if approved {
		if err := s.tickets.RefundTicket(ctx, ticketID, req.ConcertID); err != nil {
			if errors.Is(err, repository.ErrStateChanged) {
				return fmt.Errorf("%s: %w", op, ErrTicketNotValid)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		if s.cache != nil {
			_ = s.cache.InvalidateConcert(ctx, req.ConcertID.String())
		}

		req.Status = domain.RefundApproved
	} else {
		req.Status = domain.RefundRejected
	}

	now := time.Now()
	req.ReviewedAt = &now
	req.ReviewerID = &reviewerID
	req.ReviewNote = note

	if err := s.queue.Complete(ctx, req); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	monitoring.RefundReviewed(string(req.Status))

	if req.Status == domain.RefundRejected && s.notify != nil {
		notice := notifier.RefundRejectedNotice{
			Username:    req.Username,
			ConcertName: req.ConcertTitle,
			Reason:      note,
		}
		if err := s.notify.NotifyRefundRejected(ctx, req.UserEmail, notice); err != nil {
			// delivery is best effort; the review decision stands
			s.logger.Warn("refund rejection notice failed",
				"ticket_id", ticketID.String(), "error", err)
		}
	}

	return nil
}
