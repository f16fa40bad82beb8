package verification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/repository"
	postgresrepo "github.com/veloticket/stagegate/internal/repository/postgres"
	"github.com/veloticket/stagegate/internal/signature"
)

type fakeTickets struct {
	byQR map[string]*domain.Ticket
}

func (f *fakeTickets) GetByQRData(ctx context.Context, qrData string) (*domain.Ticket, error) {
	t, ok := f.byQR[qrData]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) MarkUsed(ctx context.Context, id uuid.UUID) error {
	for _, t := range f.byQR {
		if t.ID == id {
			if t.Status != domain.TicketValid {
				return repository.ErrStateChanged
			}
			t.Status = domain.TicketUsed
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeConcerts struct {
	concert *domain.Concert
}

func (f *fakeConcerts) Get(ctx context.Context, id uuid.UUID) (*domain.Concert, error) {
	if f.concert == nil || f.concert.ID != id {
		return nil, repository.ErrNotFound
	}
	return f.concert, nil
}

type fakeUsers struct {
	user *domain.User
}

func (f *fakeUsers) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, repository.ErrNotFound
	}
	return f.user, nil
}

type fakeAudit struct {
	records []domain.VerificationRecord
}

func (f *fakeAudit) Append(ctx context.Context, rec *domain.VerificationRecord) error {
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeAudit) History(ctx context.Context, filter postgresrepo.HistoryFilter) ([]domain.VerificationRecordView, error) {
	out := make([]domain.VerificationRecordView, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, domain.VerificationRecordView{VerificationRecord: r})
	}
	return out, nil
}

type scanFixture struct {
	svc     *Service
	tickets *fakeTickets
	audit   *fakeAudit
	qrData  string
	ticket  *domain.Ticket
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()

	kp, err := signature.GenerateKeyPair()
	require.NoError(t, err)

	concert := &domain.Concert{
		ID:        uuid.New(),
		Title:     "Autumn Night",
		PublicKey: kp.PublicKey,
	}
	user := &domain.User{ID: uuid.New(), Username: "alice"}

	ticketID := uuid.New()
	ts := time.Now().UnixMilli()
	msg := signature.CanonicalMessage(
		ticketID.String(), concert.ID.String(), user.ID.String(), ts,
	)
	sig, err := signature.Sign(msg, kp.PrivateKey)
	require.NoError(t, err)
	qr, err := signature.BuildQRPayload(ticketID.String(), sig, ts)
	require.NoError(t, err)

	ticket := &domain.Ticket{
		ID:         ticketID,
		ConcertID:  concert.ID,
		UserID:     user.ID,
		Type:       domain.TicketAdult,
		Status:     domain.TicketValid,
		Signature:  sig,
		QRCodeData: qr,
	}

	tickets := &fakeTickets{byQR: map[string]*domain.Ticket{qr: ticket}}
	audit := &fakeAudit{}
	svc := New(tickets, &fakeConcerts{concert: concert}, &fakeUsers{user: user}, audit, nil, Config{})

	return &scanFixture{svc: svc, tickets: tickets, audit: audit, qrData: qr, ticket: ticket}
}

func TestVerifyTicket_VerifyOnce(t *testing.T) {
	fx := newScanFixture(t)
	inspector := uuid.New()

	first, err := fx.svc.VerifyTicket(context.Background(), fx.qrData, "Gate A", inspector)
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.Equal(t, domain.TicketUsed, first.TicketStatus)
	assert.Equal(t, "Autumn Night", first.ConcertTitle)
	assert.Equal(t, "alice", first.Username)

	second, err := fx.svc.VerifyTicket(context.Background(), fx.qrData, "Gate A", inspector)
	require.NoError(t, err)
	assert.False(t, second.Valid)
	assert.Equal(t, domain.TicketUsed, second.TicketStatus)

	// both scans are audited, the repeat included
	require.Len(t, fx.audit.records, 2)
	assert.True(t, fx.audit.records[0].OK)
	assert.False(t, fx.audit.records[1].OK)
	assert.Equal(t, domain.TicketUsed, fx.tickets.byQR[fx.qrData].Status)
}

func TestVerifyTicket_MalformedPayloadNoAudit(t *testing.T) {
	fx := newScanFixture(t)

	for _, raw := range []string{"not json", "{}", `{"ticketId":"x"}`} {
		_, err := fx.svc.VerifyTicket(context.Background(), raw, "Gate A", uuid.New())
		assert.ErrorIs(t, err, ErrInvalidPayload, "payload %q", raw)
	}

	assert.Empty(t, fx.audit.records)
}

func TestVerifyTicket_UnknownPayloadNoAudit(t *testing.T) {
	fx := newScanFixture(t)

	qr, err := signature.BuildQRPayload(uuid.New().String(), "deadbeef", time.Now().UnixMilli())
	require.NoError(t, err)

	_, err = fx.svc.VerifyTicket(context.Background(), qr, "Gate A", uuid.New())
	assert.ErrorIs(t, err, ErrTicketNotFound)
	assert.Empty(t, fx.audit.records)
}

func TestVerifyTicket_RefundedTicketRejectedButAudited(t *testing.T) {
	fx := newScanFixture(t)
	fx.ticket.Status = domain.TicketRefunded

	res, err := fx.svc.VerifyTicket(context.Background(), fx.qrData, "Gate B", uuid.New())
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, domain.TicketRefunded, res.TicketStatus)

	require.Len(t, fx.audit.records, 1)
	assert.False(t, fx.audit.records[0].OK)
	assert.Equal(t, domain.TicketRefunded, fx.tickets.byQR[fx.qrData].Status)
}

func TestVerifyTicket_ForeignKeySignatureRejected(t *testing.T) {
	fx := newScanFixture(t)

	// swap the concert's public key: the stored signature no longer verifies
	other, err := signature.GenerateKeyPair()
	require.NoError(t, err)
	fx.svc.concerts.(*fakeConcerts).concert.PublicKey = other.PublicKey

	res, err := fx.svc.VerifyTicket(context.Background(), fx.qrData, "Gate A", uuid.New())
	require.NoError(t, err)
	assert.False(t, res.Valid)

	// rejection is audited and the ticket stays valid
	require.Len(t, fx.audit.records, 1)
	assert.Equal(t, domain.TicketValid, fx.tickets.byQR[fx.qrData].Status)
}

func TestGetVerificationHistory_PassesThrough(t *testing.T) {
	fx := newScanFixture(t)

	_, err := fx.svc.VerifyTicket(context.Background(), fx.qrData, "Gate A", uuid.New())
	require.NoError(t, err)

	got, err := fx.svc.GetVerificationHistory(context.Background(), postgresrepo.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
