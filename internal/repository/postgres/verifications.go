package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veloticket/stagegate/internal/domain"
)

type VerificationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *VerificationRepo) With(db DB) *VerificationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *VerificationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Append writes one immutable audit entry. Records are never updated or
// deleted afterwards.
func (r *VerificationRepo) Append(ctx context.Context, rec *domain.VerificationRecord) error {
	const op = "postgres.VerificationRepo.Append"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO verification_records
		   (id, ticket_id, inspector_id, location, ok, signature, verified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.TicketID, rec.InspectorID, rec.Location,
		rec.OK, rec.Signature, rec.VerifiedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// HistoryFilter narrows the inspection history. Nil fields are ignored.
type HistoryFilter struct {
	ConcertID   *uuid.UUID
	InspectorID *uuid.UUID
	From        *time.Time
	To          *time.Time
}

// History returns audit entries joined with display fields, newest first.
func (r *VerificationRepo) History(
	ctx context.Context,
	f HistoryFilter,
) ([]domain.VerificationRecordView, error) {
	const op = "postgres.VerificationRepo.History"

	db := r.handle()

	query := `SELECT v.id, v.ticket_id, v.inspector_id, v.location, v.ok,
	                 v.signature, v.verified_at, c.title, u.username
	            FROM verification_records v
	            JOIN tickets t ON t.id = v.ticket_id
	            JOIN concerts c ON c.id = t.concert_id
	            JOIN users u ON u.id = t.user_id`

	var (
		args  []any
		conds []string
	)

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}

	if f.ConcertID != nil {
		add("t.concert_id = ", *f.ConcertID)
	}
	if f.InspectorID != nil {
		add("v.inspector_id = ", *f.InspectorID)
	}
	if f.From != nil {
		add("v.verified_at >= ", *f.From)
	}
	if f.To != nil {
		add("v.verified_at <= ", *f.To)
	}

	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY v.verified_at DESC"

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.VerificationRecordView
	for rows.Next() {
		var v domain.VerificationRecordView
		if err := rows.Scan(
			&v.ID, &v.TicketID, &v.InspectorID, &v.Location, &v.OK,
			&v.Signature, &v.VerifiedAt, &v.ConcertTitle, &v.Username,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
