package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/monitoring"
	"github.com/veloticket/stagegate/internal/repository"
	postgresrepo "github.com/veloticket/stagegate/internal/repository/postgres"
	redisrepo "github.com/veloticket/stagegate/internal/repository/redis"
	"github.com/veloticket/stagegate/internal/signature"
)

type TicketStore interface {
	GetByQRData(ctx context.Context, qrData string) (*domain.Ticket, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
}

type ConcertStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Concert, error)
}

type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type AuditStore interface {
	Append(ctx context.Context, rec *domain.VerificationRecord) error
	History(ctx context.Context, f postgresrepo.HistoryFilter) ([]domain.VerificationRecordView, error)
}

type Config struct {
	ConcertCacheTTL time.Duration
}

type Service struct {
	tickets  TicketStore
	concerts ConcertStore
	users    UserStore
	audit    AuditStore
	cache    *redisrepo.Cache
	cfg      Config
}

func New(
	tickets TicketStore,
	concerts ConcertStore,
	users UserStore,
	audit AuditStore,
	cache *redisrepo.Cache,
	cfg Config,
) *Service {
	if cfg.ConcertCacheTTL <= 0 {
		cfg.ConcertCacheTTL = time.Minute
	}

	return &Service{
		tickets:  tickets,
		concerts: concerts,
		users:    users,
		audit:    audit,
		cache:    cache,
		cfg:      cfg,
	}
}

// VerifyTicket runs the gate-scan protocol for one QR payload.
//
// The ticket is looked up by the exact payload string it was issued with, so
// a payload whose embedded signature differs from the issued one simply does
// not resolve. Once a ticket is found, an audit record is written no matter
// how the scan turns out; repeated scans of used or refunded tickets are
// captured too. Only a signature-verified scan of a valid ticket flips it to
// used.
//
// Returns:
//   - *domain.VerifyResult: scan outcome plus display fields for the
//     inspector; Valid is false for any rejected scan.
//   - error: verification.ErrInvalidPayload for unparseable payloads (no
//     audit record), verification.ErrTicketNotFound for unknown payloads (no
//     audit record).
func (s *Service) VerifyTicket(
	ctx context.Context,
	qrData, location string,
	inspectorID uuid.UUID,
) (*domain.VerifyResult, error) {
	const op = "service.verification.VerifyTicket"

	payload := signature.ParseQRPayload(qrData)
	if payload == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPayload)
	}

	ticket, err := s.tickets.GetByQRData(ctx, qrData)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	concert, err := s.getConcert(ctx, ticket.ConcertID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	valid := false
	status := ticket.Status

	if ticket.Status == domain.TicketValid {
		msg := signature.CanonicalMessage(
			payload.TicketID,
			ticket.ConcertID.String(),
			ticket.UserID.String(),
			payload.Timestamp,
		)

		if signature.Verify(msg, payload.Signature, concert.PublicKey) {
			switch err := s.tickets.MarkUsed(ctx, ticket.ID); {
			case err == nil:
				valid = true
				status = domain.TicketUsed
			case errors.Is(err, repository.ErrStateChanged):
				// a concurrent scan got there first; this one is rejected
			default:
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	now := time.Now()
	rec := &domain.VerificationRecord{
		ID:          uuid.New(),
		TicketID:    ticket.ID,
		InspectorID: inspectorID,
		Location:    location,
		OK:          valid,
		Signature:   payload.Signature,
		VerifiedAt:  now,
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	monitoring.VerificationRecorded(valid)

	result := &domain.VerifyResult{
		Valid:        valid,
		TicketID:     ticket.ID,
		TicketType:   ticket.Type,
		TicketStatus: status,
		ConcertTitle: concert.Title,
		VerifiedAt:   now,
	}

	if user, err := s.users.Get(ctx, ticket.UserID); err == nil {
		result.Username = user.Username
	}

	return result, nil
}

// GetVerificationHistory returns the audit trail, newest first, filtered by
// concert, inspector, or time range.
func (s *Service) GetVerificationHistory(
	ctx context.Context,
	f postgresrepo.HistoryFilter,
) ([]domain.VerificationRecordView, error) {
	const op = "service.verification.GetVerificationHistory"

	records, err := s.audit.History(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return records, nil
}

func (s *Service) getConcert(ctx context.Context, id uuid.UUID) (*domain.Concert, error) {
	if s.cache == nil {
		return s.concerts.Get(ctx, id)
	}

	return redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyConcertSummary(id.String()),
		s.cfg.ConcertCacheTTL,
		func(ctx context.Context) (*domain.Concert, error) {
			return s.concerts.Get(ctx, id)
		},
	)
}
