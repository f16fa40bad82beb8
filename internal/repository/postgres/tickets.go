package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/repository"
)

type TicketRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const ticketColumns = `id, concert_id, user_id, type, price, status,
	signature, qr_code_data, issued_at, used_at, refunded_at`

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(
		&t.ID, &t.ConcertID, &t.UserID, &t.Type, &t.Price, &t.Status,
		&t.Signature, &t.QRCodeData, &t.IssuedAt, &t.UsedAt, &t.RefundedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Get retrieves a ticket by its permanent identifier.
//
// Returns:
//   - error: repository.ErrNotFound if the ticket does not exist.
func (r *TicketRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	const op = "postgres.TicketRepo.Get"

	db := r.handle()

	t, err := scanTicket(db.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

// GetByQRData looks a ticket up by the exact QR payload string it was issued
// with. The payload embeds the signature, so this match also pins the
// signature to what issuance produced.
//
// Returns:
//   - error: repository.ErrNotFound if no ticket carries this payload.
func (r *TicketRepo) GetByQRData(ctx context.Context, qrData string) (*domain.Ticket, error) {
	const op = "postgres.TicketRepo.GetByQRData"

	db := r.handle()

	t, err := scanTicket(db.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE qr_code_data = $1`, qrData,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

// CountActiveByType counts a user's valid and used tickets of one type for a
// concert. Refunded tickets do not count against purchase caps.
func (r *TicketRepo) CountActiveByType(
	ctx context.Context,
	concertID, userID uuid.UUID,
	t domain.TicketType,
) (int, error) {
	const op = "postgres.TicketRepo.CountActiveByType"

	db := r.handle()

	var n int
	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets
		  WHERE concert_id = $1 AND user_id = $2 AND type = $3
		    AND status IN ('valid', 'used')`,
		concertID, userID, t,
	).Scan(&n)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

// IssueOrder persists one order's tickets atomically: the per-user cap
// re-check, the ticket inserts, and the bounded sold-counter increment all run
// in one serializable transaction, so concurrent orders cannot oversell or
// slip past the caps. Serialization failures from concurrent orders are
// retried before surfacing.
//
// Parameters:
//   - caps: per-type purchase ceilings for this concert.
//
// Returns:
//   - error: repository.ErrPurchaseLimit if a cap would be exceeded.
//   - error: repository.ErrSoldOut if inventory would be exceeded.
func (r *TicketRepo) IssueOrder(
	ctx context.Context,
	concertID, userID uuid.UUID,
	tickets []domain.Ticket,
	caps map[domain.TicketType]int,
) error {
	const op = "postgres.TicketRepo.IssueOrder"

	if r.db != nil {
		if err := r.issueOrderCore(ctx, r.db, concertID, userID, tickets, caps); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	err := runSerializable(ctx, r.pool, func(ctx context.Context, tx DB) error {
		return r.issueOrderCore(ctx, tx, concertID, userID, tickets, caps)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *TicketRepo) issueOrderCore(
	ctx context.Context,
	db DB,
	concertID, userID uuid.UUID,
	tickets []domain.Ticket,
	caps map[domain.TicketType]int,
) error {
	requested := make(map[domain.TicketType]int)
	for _, t := range tickets {
		requested[t.Type]++
	}

	for typ, n := range requested {
		var owned int
		if err := db.QueryRow(ctx,
			`SELECT COUNT(*) FROM tickets
			  WHERE concert_id = $1 AND user_id = $2 AND type = $3
			    AND status IN ('valid', 'used')`,
			concertID, userID, typ,
		).Scan(&owned); err != nil {
			return translateDBErr(err)
		}

		if owned+n > caps[typ] {
			return repository.ErrPurchaseLimit
		}
	}

	if err := (&ConcertRepo{}).With(db).IncrementSold(ctx, concertID, len(tickets)); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(
			`INSERT INTO tickets
			   (id, concert_id, user_id, type, price, status,
			    signature, qr_code_data, issued_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			t.ID, t.ConcertID, t.UserID, t.Type, t.Price, t.Status,
			t.Signature, t.QRCodeData, t.IssuedAt,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return translateDBErr(err)
	}

	return nil
}

// MarkUsed flips a ticket from valid to used. The status predicate makes the
// transition single-shot: a ticket that is already used or refunded is left
// untouched.
//
// Returns:
//   - error: repository.ErrStateChanged if the ticket was not in the valid state.
func (r *TicketRepo) MarkUsed(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.TicketRepo.MarkUsed"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tickets SET status = 'used', used_at = now()
		  WHERE id = $1 AND status = 'valid'`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrStateChanged)
	}

	return nil
}

// RefundTicket transitions a still-valid ticket to refunded and releases its
// inventory unit, both inside one serializable transaction.
//
// Returns:
//   - error: repository.ErrStateChanged if the ticket is no longer valid.
func (r *TicketRepo) RefundTicket(ctx context.Context, ticketID, concertID uuid.UUID) error {
	const op = "postgres.TicketRepo.RefundTicket"

	if r.db != nil {
		if err := r.refundTicketCore(ctx, r.db, ticketID, concertID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	err := runSerializable(ctx, r.pool, func(ctx context.Context, tx DB) error {
		return r.refundTicketCore(ctx, tx, ticketID, concertID)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *TicketRepo) refundTicketCore(ctx context.Context, db DB, ticketID, concertID uuid.UUID) error {
	tag, err := db.Exec(ctx,
		`UPDATE tickets SET status = 'refunded', refunded_at = now()
		  WHERE id = $1 AND status = 'valid'`,
		ticketID,
	)
	if err != nil {
		return translateDBErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrStateChanged
	}

	if _, err := db.Exec(ctx,
		`UPDATE concerts SET sold_tickets = sold_tickets - 1
		  WHERE id = $1 AND sold_tickets > 0`,
		concertID,
	); err != nil {
		return translateDBErr(err)
	}

	return nil
}
