package refund

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/notifier"
	"github.com/veloticket/stagegate/internal/repository"
)

type fakeTickets struct {
	tickets map[uuid.UUID]*domain.Ticket
	sold    map[uuid.UUID]int
}

func (f *fakeTickets) Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) RefundTicket(ctx context.Context, ticketID, concertID uuid.UUID) error {
	t, ok := f.tickets[ticketID]
	if !ok || t.Status != domain.TicketValid {
		return repository.ErrStateChanged
	}
	t.Status = domain.TicketRefunded
	f.sold[concertID]--
	return nil
}

type fakeConcerts struct {
	concerts map[uuid.UUID]*domain.Concert
}

func (f *fakeConcerts) Get(ctx context.Context, id uuid.UUID) (*domain.Concert, error) {
	c, ok := f.concerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

type fakeUsers struct {
	users map[uuid.UUID]*domain.User
}

func (f *fakeUsers) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

type fakeQueue struct {
	reqs      map[uuid.UUID]*domain.RefundRequest
	submitErr error
}

func (f *fakeQueue) Submit(ctx context.Context, req *domain.RefundRequest) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	if cur, ok := f.reqs[req.TicketID]; ok && cur.Status == domain.RefundPending {
		return repository.ErrDuplicate
	}
	cp := *req
	f.reqs[req.TicketID] = &cp
	return nil
}

func (f *fakeQueue) Get(ctx context.Context, ticketID uuid.UUID) (*domain.RefundRequest, error) {
	r, ok := f.reqs[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeQueue) ListByStatus(ctx context.Context, status domain.RefundStatus) ([]domain.RefundRequest, error) {
	var out []domain.RefundRequest
	for _, r := range f.reqs {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeQueue) Complete(ctx context.Context, req *domain.RefundRequest) error {
	cp := *req
	f.reqs[req.TicketID] = &cp
	return nil
}

type fakeNotifier struct {
	notices []notifier.RefundRejectedNotice
	emails  []string
	err     error
}

func (f *fakeNotifier) NotifyRefundRejected(ctx context.Context, email string, n notifier.RefundRejectedNotice) error {
	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, email)
	f.notices = append(f.notices, n)
	return nil
}

type refundFixture struct {
	svc       *Service
	tickets   *fakeTickets
	concerts  *fakeConcerts
	queue     *fakeQueue
	notify    *fakeNotifier
	concertID uuid.UUID
	ticketID  uuid.UUID
	userID    uuid.UUID
}

func newRefundFixture(t *testing.T) *refundFixture {
	t.Helper()

	concertID := uuid.New()
	ticketID := uuid.New()
	userID := uuid.New()

	tickets := &fakeTickets{
		tickets: map[uuid.UUID]*domain.Ticket{
			ticketID: {
				ID:        ticketID,
				ConcertID: concertID,
				UserID:    userID,
				Type:      domain.TicketAdult,
				Price:     decimal.NewFromInt(380),
				Status:    domain.TicketValid,
			},
		},
		sold: map[uuid.UUID]int{concertID: 1},
	}
	concerts := &fakeConcerts{
		concerts: map[uuid.UUID]*domain.Concert{
			concertID: {
				ID:          concertID,
				Title:       "Autumn Night",
				ScheduledAt: time.Now().Add(14 * 24 * time.Hour),
			},
		},
	}
	users := &fakeUsers{
		users: map[uuid.UUID]*domain.User{
			userID: {ID: userID, Username: "alice", Email: "alice@example.com"},
		},
	}
	queue := &fakeQueue{reqs: map[uuid.UUID]*domain.RefundRequest{}}
	notify := &fakeNotifier{}

	svc := New(tickets, concerts, users, queue, notify, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	return &refundFixture{
		svc:       svc,
		tickets:   tickets,
		concerts:  concerts,
		queue:     queue,
		notify:    notify,
		concertID: concertID,
		ticketID:  ticketID,
		userID:    userID,
	}
}

func TestRequestRefund_Success(t *testing.T) {
	fx := newRefundFixture(t)

	err := fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "行程冲突")
	require.NoError(t, err)

	req := fx.queue.reqs[fx.ticketID]
	require.NotNil(t, req)
	assert.Equal(t, domain.RefundPending, req.Status)
	assert.Equal(t, "alice", req.Username)
	assert.Equal(t, "Autumn Night", req.ConcertTitle)
	assert.Equal(t, decimal.NewFromInt(380), req.TicketPrice)
}

func TestRequestRefund_NotOwner(t *testing.T) {
	fx := newRefundFixture(t)

	err := fx.svc.RequestRefund(context.Background(), fx.ticketID, uuid.New(), "x")
	assert.ErrorIs(t, err, ErrNotTicketOwner)
}

func TestRequestRefund_OnlyValidTickets(t *testing.T) {
	fx := newRefundFixture(t)
	fx.tickets.tickets[fx.ticketID].Status = domain.TicketUsed

	err := fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "x")
	assert.ErrorIs(t, err, ErrTicketNotValid)
	assert.EqualError(t, ErrTicketNotValid, "只能退还有效状态的票据")
}

func TestRequestRefund_ConcertAlreadyStarted(t *testing.T) {
	fx := newRefundFixture(t)
	fx.concerts.concerts[fx.concertID].ScheduledAt = time.Now().Add(-time.Hour)

	err := fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "x")
	assert.ErrorIs(t, err, ErrConcertStarted)
}

func TestRequestRefund_DuplicatePending(t *testing.T) {
	fx := newRefundFixture(t)

	require.NoError(t, fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "x"))

	err := fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "x")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestRequestRefund_SubmitRaceMapsToDuplicate(t *testing.T) {
	fx := newRefundFixture(t)
	fx.queue.submitErr = repository.ErrDuplicate

	err := fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "x")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestReviewRefund_Approve(t *testing.T) {
	fx := newRefundFixture(t)
	reviewer := uuid.New()

	require.NoError(t, fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "行程冲突"))
	require.NoError(t, fx.svc.ReviewRefund(context.Background(), fx.ticketID, reviewer, true, "ok"))

	assert.Equal(t, domain.TicketRefunded, fx.tickets.tickets[fx.ticketID].Status)
	assert.Equal(t, 0, fx.tickets.sold[fx.concertID])

	req := fx.queue.reqs[fx.ticketID]
	assert.Equal(t, domain.RefundApproved, req.Status)
	require.NotNil(t, req.ReviewerID)
	assert.Equal(t, reviewer, *req.ReviewerID)
	assert.NotNil(t, req.ReviewedAt)
	assert.Empty(t, fx.notify.notices)
}

func TestReviewRefund_ApproveRequiresStillValidTicket(t *testing.T) {
	fx := newRefundFixture(t)

	require.NoError(t, fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "x"))

	// ticket was scanned at the gate after the request was filed
	fx.tickets.tickets[fx.ticketID].Status = domain.TicketUsed

	err := fx.svc.ReviewRefund(context.Background(), fx.ticketID, uuid.New(), true, "")
	assert.ErrorIs(t, err, ErrTicketNotValid)
	assert.Equal(t, domain.RefundPending, fx.queue.reqs[fx.ticketID].Status)
	assert.Equal(t, 1, fx.tickets.sold[fx.concertID])
}

func TestReviewRefund_RejectRequiresNote(t *testing.T) {
	fx := newRefundFixture(t)

	require.NoError(t, fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "x"))

	err := fx.svc.ReviewRefund(context.Background(), fx.ticketID, uuid.New(), false, "   ")
	assert.ErrorIs(t, err, ErrNoteRequired)
}

func TestReviewRefund_RejectNotifiesRequester(t *testing.T) {
	fx := newRefundFixture(t)

	require.NoError(t, fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "行程冲突"))
	require.NoError(t, fx.svc.ReviewRefund(context.Background(), fx.ticketID, uuid.New(), false, "超出退款时限"))

	assert.Equal(t, domain.TicketValid, fx.tickets.tickets[fx.ticketID].Status)
	assert.Equal(t, domain.RefundRejected, fx.queue.reqs[fx.ticketID].Status)

	require.Len(t, fx.notify.notices, 1)
	assert.Equal(t, []string{"alice@example.com"}, fx.notify.emails)
	assert.Equal(t, "Autumn Night", fx.notify.notices[0].ConcertName)
	assert.Equal(t, "超出退款时限", fx.notify.notices[0].Reason)
}

func TestReviewRefund_NotifierFailureDoesNotFailReview(t *testing.T) {
	fx := newRefundFixture(t)
	fx.notify.err = errors.New("smtp down")

	require.NoError(t, fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "x"))

	err := fx.svc.ReviewRefund(context.Background(), fx.ticketID, uuid.New(), false, "note")
	assert.NoError(t, err)
	assert.Equal(t, domain.RefundRejected, fx.queue.reqs[fx.ticketID].Status)
}

func TestReviewRefund_AlreadyReviewed(t *testing.T) {
	fx := newRefundFixture(t)

	require.NoError(t, fx.svc.RequestRefund(context.Background(), fx.ticketID, fx.userID, "x"))
	require.NoError(t, fx.svc.ReviewRefund(context.Background(), fx.ticketID, uuid.New(), false, "note"))

	err := fx.svc.ReviewRefund(context.Background(), fx.ticketID, uuid.New(), true, "")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestReviewRefund_RequestNotFound(t *testing.T) {
	fx := newRefundFixture(t)

	err := fx.svc.ReviewRefund(context.Background(), uuid.New(), uuid.New(), true, "")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestListRefundRequests_FilterAndOrder(t *testing.T) {
	fx := newRefundFixture(t)
	otherConcert := uuid.New()

	now := time.Now()
	fx.queue.reqs[uuid.New()] = &domain.RefundRequest{
		TicketID: uuid.New(), ConcertID: fx.concertID, UserID: fx.userID,
		Status: domain.RefundPending, RequestedAt: now.Add(-2 * time.Hour),
	}
	newest := &domain.RefundRequest{
		TicketID: uuid.New(), ConcertID: fx.concertID, UserID: fx.userID,
		Status: domain.RefundPending, RequestedAt: now.Add(-time.Hour),
	}
	fx.queue.reqs[newest.TicketID] = newest
	fx.queue.reqs[uuid.New()] = &domain.RefundRequest{
		TicketID: uuid.New(), ConcertID: otherConcert, UserID: fx.userID,
		Status: domain.RefundPending, RequestedAt: now,
	}

	got, err := fx.svc.ListRefundRequests(
		context.Background(), domain.RefundPending, &fx.concertID, nil,
	)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newest.TicketID, got[0].TicketID)
	assert.True(t, got[0].RequestedAt.After(got[1].RequestedAt))
}
