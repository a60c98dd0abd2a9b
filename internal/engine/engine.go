// Package engine wires the login authority's subsystems together and
// owns the background jobs that keep them healthy.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/originline/loginauth/internal/auth"
	"github.com/originline/loginauth/internal/charserver"
	"github.com/originline/loginauth/internal/config"
	"github.com/originline/loginauth/internal/ipban"
	"github.com/originline/loginauth/internal/lanmap"
	"github.com/originline/loginauth/internal/login"
	"github.com/originline/loginauth/internal/presence"
	"github.com/originline/loginauth/internal/scheduler"
	"github.com/originline/loginauth/internal/store"
	"github.com/originline/loginauth/internal/tokenfifo"
)

const (
	ipBanSweepInterval    = 60 * time.Second
	presenceSweepInterval = 10 * time.Minute

	minDBKeepaliveInterval = 30 * time.Second
	dbKeepaliveReserve     = 30 * time.Second
)

// dbKeepaliveInterval returns max(30s, waitTimeout-30s), keeping the
// keepalive ping comfortably ahead of the database server's own
// idle-connection timeout.
func dbKeepaliveInterval(waitTimeout int) time.Duration {
	interval := time.Duration(waitTimeout)*time.Second - dbKeepaliveReserve
	if interval < minDBKeepaliveInterval {
		return minDBKeepaliveInterval
	}
	return interval
}

// Engine owns every long-lived login-authority subsystem and the
// scheduler driving their periodic jobs.
type Engine struct {
	cfg config.LoginServer

	Store     *store.Store
	Gate      *ipban.Gate
	DNSBL     *ipban.DNSBL
	Registry  *presence.Registry
	Tokens    *tokenfifo.FIFO
	CharTable *charserver.Table
	LAN       *lanmap.Map
	Sched     *scheduler.Scheduler
	Auth      *auth.Engine
	Server    *login.Server
}

// New constructs every subsystem from cfg and an already connected
// store.
func New(cfg config.LoginServer, st *store.Store) (*Engine, error) {
	gate := ipban.New(st)

	var dnsbl *ipban.DNSBL
	if cfg.UseDNSBL {
		dnsbl = ipban.NewDNSBL(cfg.DNSBLServers)
	}

	registry := presence.New(cfg.OnlineCheck)
	tokens := tokenfifo.New()
	charTable := charserver.New()
	sched := scheduler.New()

	lan, err := lanmap.New(cfg.LAN)
	if err != nil {
		return nil, fmt.Errorf("building lan map: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		Store:     st,
		Gate:      gate,
		DNSBL:     dnsbl,
		Registry:  registry,
		Tokens:    tokens,
		CharTable: charTable,
		LAN:       lan,
		Sched:     sched,
	}

	authEngine, err := auth.New(cfg, st, gate, dnsblInterface(dnsbl), registry, e, tokens)
	if err != nil {
		return nil, fmt.Errorf("building auth engine: %w", err)
	}
	e.Auth = authEngine

	e.Server = login.NewServer(cfg, st, authEngine, registry, tokens, charTable, lan, sched)

	e.scheduleJobs()

	return e, nil
}

// Kick implements auth.Kicker by delegating to the login server's
// char-link broadcast + watchdog.
func (e *Engine) Kick(accountID int32, owner int16) {
	e.Server.Kick(accountID, owner)
}

// dnsblInterface adapts a possibly-nil *ipban.DNSBL to auth.DNSBL
// without the interface itself going non-nil-but-holding-nil.
func dnsblInterface(d *ipban.DNSBL) auth.DNSBL {
	if d == nil {
		return nil
	}
	return d
}

func (e *Engine) scheduleJobs() {
	e.Sched.ScheduleInterval("ipban-sweep", ipBanSweepInterval, func(ctx context.Context) {
		n, err := e.Gate.Sweep(ctx)
		if err != nil {
			slog.Error("ip ban sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("ip ban sweep removed expired bans", "count", n)
		}
	})

	e.Sched.ScheduleInterval("presence-cleanup", presenceSweepInterval, func(ctx context.Context) {
		n := e.Registry.CleanupStale()
		if n > 0 {
			slog.Info("presence cleanup removed orphaned entries", "count", n)
		}
	})

	e.Sched.ScheduleInterval("db-keepalive", dbKeepaliveInterval(e.cfg.Database.WaitTimeout), func(ctx context.Context) {
		if err := e.Store.Pool().Ping(ctx); err != nil {
			slog.Error("database keepalive ping failed", "error", err)
		}
	})

	if e.cfg.IPSyncInterval > 0 {
		ipSyncInterval := time.Duration(e.cfg.IPSyncInterval) * time.Minute
		e.Sched.ScheduleInterval("ip-sync", ipSyncInterval, func(ctx context.Context) {
			e.Server.RequestWANIPSync()
		})
	}
}

// Run starts the scheduler and the login server's accept loop in
// parallel, stopping both as soon as either returns.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Sched.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := e.Server.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("login server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}
