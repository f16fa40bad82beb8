package service

import (
	"log/slog"

	"github.com/veloticket/stagegate/internal/notifier"
	postgresrepo "github.com/veloticket/stagegate/internal/repository/postgres"
	redisrepo "github.com/veloticket/stagegate/internal/repository/redis"
	"github.com/veloticket/stagegate/internal/service/auth"
	"github.com/veloticket/stagegate/internal/service/concerts"
	"github.com/veloticket/stagegate/internal/service/issuance"
	"github.com/veloticket/stagegate/internal/service/refund"
	"github.com/veloticket/stagegate/internal/service/verification"
)

type Services struct {
	Concerts     *concerts.Service
	Issuance     *issuance.Service
	Verification *verification.Service
	Refund       *refund.Service
	Auth         *auth.Service
}

type Config struct {
	Concerts     concerts.Config
	Verification verification.Config
	Auth         auth.Config
}

func NewServices(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	queue *redisrepo.RefundQueue,
	limiter *redisrepo.LoginLimiter,
	notify notifier.Notifier,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Concerts:     concerts.New(store.Concerts(), cache, cfg.Concerts),
		Issuance:     issuance.New(store.Concerts(), store.Tickets(), cache),
		Verification: verification.New(store.Tickets(), store.Concerts(), store.Users(), store.Verifications(), cache, cfg.Verification),
		Refund:       refund.New(store.Tickets(), store.Concerts(), store.Users(), queue, notify, cache, logger),
		Auth:         auth.New(store.Users(), limiter, cfg.Auth, logger),
	}
}
