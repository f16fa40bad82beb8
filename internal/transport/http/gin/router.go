package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veloticket/stagegate/internal/domain"
	postgresrepo "github.com/veloticket/stagegate/internal/repository/postgres"
	redisrepo "github.com/veloticket/stagegate/internal/repository/redis"
	"github.com/veloticket/stagegate/internal/service"
	"github.com/veloticket/stagegate/internal/service/auth"
	"github.com/veloticket/stagegate/internal/service/concerts"
	"github.com/veloticket/stagegate/internal/service/issuance"
	"github.com/veloticket/stagegate/internal/service/refund"
	"github.com/veloticket/stagegate/internal/service/verification"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS(), MetricsMiddleware())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// health + metrics
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public API
	r.POST("/auth/login", handleLogin(svcs))
	r.GET("/concerts/:id", handleGetConcert(svcs))

	authed := r.Group("", AuthMiddleware(svcs.Auth))
	{
		authed.POST("/orders", handleCreateOrder(svcs, idem))
		authed.POST("/tickets/:id/refund-requests", handleRequestRefund(svcs))

		// inspector surface
		authed.POST("/verifications", handleVerifyTicket(svcs))
		authed.GET("/verifications", handleVerificationHistory(svcs))

		// review surface
		authed.GET("/refund-requests", handleListRefundRequests(svcs))
		authed.POST("/refund-requests/:ticketId/review", handleReviewRefund(svcs))

		admin := authed.Group("/admin")
		{
			admin.POST("/concerts", handleCreateConcert(svcs))
		}
	}

	return r
}

func handleLogin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		token, user, err := svcs.Auth.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:    token,
			UserID:   user.ID.String(),
			Username: user.Username,
		})
	}
}

func handleGetConcert(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		concert, err := svcs.Concerts.GetConcert(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toConcertResponse(concert))
	}
}

// handleCreateOrder issues tickets. With an Idempotency-Key header, replays
// of the same submission return the originally issued tickets instead of
// minting a second batch.
func handleCreateOrder(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := callerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: auth.ErrInvalidToken.Error()})
			return
		}

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		concertID, err := uuid.Parse(req.ConcertID)
		if err != nil {
			badRequest(c, "invalid concert_id")
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemOrder(req.ConcertID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "请勿重复提交"})
				return
			}
		}

		items := make([]issuance.Item, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, issuance.Item{
				Type:     domain.TicketType(it.Type),
				Quantity: it.Quantity,
			})
		}

		tickets, err := svcs.Issuance.CreateOrder(c.Request.Context(), concertID, userID, items)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := CreateOrderResponse{Tickets: make([]TicketResponse, 0, len(tickets))}
		for _, t := range tickets {
			resp.Tickets = append(resp.Tickets, toTicketResponse(t))
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func handleVerifyTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		inspectorID, ok := callerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: auth.ErrInvalidToken.Error()})
			return
		}

		var req VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		result, err := svcs.Verification.VerifyTicket(
			c.Request.Context(), req.QRData, req.Location, inspectorID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toVerifyResponse(result))
	}
}

func handleVerificationHistory(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f postgresrepo.HistoryFilter

		if v := c.Query("concert_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				badRequest(c, "invalid concert_id")
				return
			}
			f.ConcertID = &id
		}
		if v := c.Query("inspector_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				badRequest(c, "invalid inspector_id")
				return
			}
			f.InspectorID = &id
		}
		if v := c.Query("from"); v != "" {
			ts, err := parseRFC3339(v)
			if err != nil {
				badRequest(c, "invalid from (RFC3339)")
				return
			}
			f.From = &ts
		}
		if v := c.Query("to"); v != "" {
			ts, err := parseRFC3339(v)
			if err != nil {
				badRequest(c, "invalid to (RFC3339)")
				return
			}
			f.To = &ts
		}

		records, err := svcs.Verification.GetVerificationHistory(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, records)
	}
}

func handleRequestRefund(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := callerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: auth.ErrInvalidToken.Error()})
			return
		}

		ticketID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req RefundRequestInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		if err := svcs.Refund.RequestRefund(c.Request.Context(), ticketID, userID, req.Reason); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusAccepted)
	}
}

func handleListRefundRequests(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := domain.RefundStatus(c.DefaultQuery("status", string(domain.RefundPending)))
		switch status {
		case domain.RefundPending, domain.RefundApproved, domain.RefundRejected:
		default:
			badRequest(c, "invalid status")
			return
		}

		var concertID, userID *uuid.UUID
		if v := c.Query("concert_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				badRequest(c, "invalid concert_id")
				return
			}
			concertID = &id
		}
		if v := c.Query("user_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				badRequest(c, "invalid user_id")
				return
			}
			userID = &id
		}

		reqs, err := svcs.Refund.ListRefundRequests(c.Request.Context(), status, concertID, userID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, reqs)
	}
}

func handleReviewRefund(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		reviewerID, ok := callerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: auth.ErrInvalidToken.Error()})
			return
		}

		ticketID, ok := parseUUIDParam(c, "ticketId")
		if !ok {
			return
		}

		var req ReviewRefundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		err := svcs.Refund.ReviewRefund(
			c.Request.Context(), ticketID, reviewerID, *req.Approved, req.Note)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func handleCreateConcert(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateConcertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		scheduledAt, err := parseRFC3339(req.ScheduledAt)
		if err != nil {
			badRequest(c, "invalid scheduled_at (RFC3339)")
			return
		}

		concert, err := svcs.Concerts.CreateConcert(c.Request.Context(), concerts.CreateConcertParams{
			Title:        req.Title,
			Venue:        req.Venue,
			ScheduledAt:  scheduledAt,
			TotalTickets: req.TotalTickets,
			AdultPrice:   req.AdultPrice,
			ChildPrice:   req.ChildPrice,
			MaxAdult:     req.MaxAdult,
			MaxChild:     req.MaxChild,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, toConcertResponse(concert))
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var lockErr *auth.LockoutError
	if errors.As(err, &lockErr) {
		secs := int(lockErr.Remaining.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: lockErr.Error()})
		return
	}

	switch {
	// auth service
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: auth.ErrInvalidCredentials.Error()})
	case errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: auth.ErrInvalidToken.Error()})
	// concerts service
	case errors.Is(err, concerts.ErrInvalidConcert):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: concerts.ErrInvalidConcert.Error()})
	case errors.Is(err, concerts.ErrConcertConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: concerts.ErrConcertConflict.Error()})
	case errors.Is(err, concerts.ErrConcertNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: concerts.ErrConcertNotFound.Error()})
	// issuance service
	case errors.Is(err, issuance.ErrInvalidOrder):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: issuance.ErrInvalidOrder.Error()})
	case errors.Is(err, issuance.ErrEmptyOrder):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: issuance.ErrEmptyOrder.Error()})
	case errors.Is(err, issuance.ErrConcertNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: issuance.ErrConcertNotFound.Error()})
	case errors.Is(err, issuance.ErrConcertNotOnSale):
		c.JSON(http.StatusConflict, ErrorResponse{Error: issuance.ErrConcertNotOnSale.Error()})
	case errors.Is(err, issuance.ErrInsufficientTickets):
		c.JSON(http.StatusConflict, ErrorResponse{Error: issuance.ErrInsufficientTickets.Error()})
	case errors.Is(err, issuance.ErrPurchaseLimit):
		c.JSON(http.StatusConflict, ErrorResponse{Error: issuance.ErrPurchaseLimit.Error()})
	// verification service
	case errors.Is(err, verification.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: verification.ErrInvalidPayload.Error()})
	case errors.Is(err, verification.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: verification.ErrTicketNotFound.Error()})
	// refund service
	case errors.Is(err, refund.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: refund.ErrTicketNotFound.Error()})
	case errors.Is(err, refund.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: refund.ErrRequestNotFound.Error()})
	case errors.Is(err, refund.ErrNotTicketOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: refund.ErrNotTicketOwner.Error()})
	case errors.Is(err, refund.ErrNoteRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: refund.ErrNoteRequired.Error()})
	case errors.Is(err, refund.ErrTicketNotValid):
		c.JSON(http.StatusConflict, ErrorResponse{Error: refund.ErrTicketNotValid.Error()})
	case errors.Is(err, refund.ErrConcertStarted):
		c.JSON(http.StatusConflict, ErrorResponse{Error: refund.ErrConcertStarted.Error()})
	case errors.Is(err, refund.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, ErrorResponse{Error: refund.ErrDuplicateRequest.Error()})
	case errors.Is(err, refund.ErrAlreadyReviewed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: refund.ErrAlreadyReviewed.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "服务器内部错误"})
	}
}
