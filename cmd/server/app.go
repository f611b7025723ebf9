package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"collab-server/services/groupchat-api/internal/config"
	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/audit"
	"collab-server/services/groupchat-api/internal/infrastructure/auth"
	"collab-server/services/groupchat-api/internal/infrastructure/cache"
	"collab-server/services/groupchat-api/internal/infrastructure/metrics"
	"collab-server/services/groupchat-api/internal/infrastructure/sanitize"
	"collab-server/services/groupchat-api/internal/interfaces/httpserver"
	"collab-server/services/groupchat-api/internal/interfaces/httpserver/handlers"
	"collab-server/services/groupchat-api/internal/realtime"
)

// Application holds the main application components.
type Application struct {
	httpServer *httpserver.HTTPServer
	hub        *realtime.Hub
	auditor    *audit.Observer
	retention  *audit.Retention
	validator  *auth.Validator
	log        zerolog.Logger
}

// BuildApplication wires the domain services, the realtime gateway and the
// HTTP server on top of the given stores. rdb may be nil.
func BuildApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger, stores *Stores, rdb *cache.Redis) (*Application, error) {
	observers := []events.Observer{metrics.NewObserver()}

	var auditor *audit.Observer
	var retention *audit.Retention
	if cfg.AuditEnabled {
		sanitizer := audit.NewSanitizer(audit.ParsePIILevel(cfg.AuditPIILevel), cfg.AuditPIISalt)
		auditor = audit.NewObserver(stores.Audit, sanitizer, cfg.AuditBufferSize, log)
		observers = append(observers, auditor)

		var locker audit.Locker
		if rdb != nil {
			locker = rdb
		}
		retention = audit.NewRetention(stores.Audit, locker, audit.RetentionConfig{
			Schedule: cfg.AuditRetentionSchedule,
			MaxRows:  cfg.AuditRetentionMaxRows,
			Batch:    cfg.AuditRetentionBatch,
		}, log)
	}
	observer := events.Multi(observers...)

	validator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize auth validator: %w", err)
	}
	validator.WithObserver(observer)

	nameCache, err := cache.NewNameCache(cfg, rdb, log)
	if err != nil {
		validator.Close()
		return nil, fmt.Errorf("initialize name cache: %w", err)
	}

	hub := realtime.NewHub(log)
	notifier := realtime.NewNotifier(hub)
	oracle := membership.NewOracle(stores.Memberships, log)
	resolver := message.NewResolver(stores.Directory, nameCache, log)

	var textSanitizer message.TextSanitizer
	if cfg.SanitizeHTML {
		textSanitizer = sanitize.NewText()
	}

	pipeline := message.NewPipeline(message.PipelineConfig{
		Repo:      stores.Messages,
		Stamper:   stores.Stamper,
		Oracle:    oracle,
		Tx:        stores.Tx,
		Resolver:  resolver,
		Publisher: notifier,
		Sanitizer: textSanitizer,
		Observer:  observer,
	}, log)
	history := message.NewHistory(stores.Messages, oracle, resolver, observer, log)

	groups := group.NewService(group.ServiceConfig{
		Groups:      stores.Groups,
		Memberships: stores.Memberships,
		Oracle:      oracle,
		Admins:      stores.Directory,
		Pipeline:    pipeline,
		Resolver:    resolver,
		Tx:          stores.Tx,
		Notifier:    notifier,
		Observer:    observer,
	}, log)

	dispatcher := realtime.NewDispatcher(hub, oracle, pipeline, history, observer, log)
	gateway := realtime.NewGateway(hub, dispatcher, realtime.ClientConfig{
		PingInterval:    cfg.WSPingInterval,
		PongTimeout:     cfg.WSPongTimeout,
		WriteTimeout:    cfg.WSWriteTimeout,
		SendBuffer:      cfg.WSSendBuffer,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
	}, cfg.WSAllowedOrigins, log)

	handlerProvider := handlers.NewProvider(groups, pipeline, history, validator, gateway, log)

	ready := stores.Ready
	if rdb != nil {
		dbReady := ready
		ready = func(ctx context.Context) error {
			if dbReady != nil {
				if err := dbReady(ctx); err != nil {
					return err
				}
			}
			return rdb.Ping(ctx)
		}
	}
	httpServer := httpserver.New(cfg, log, handlerProvider, validator, ready)

	return &Application{
		httpServer: httpServer,
		hub:        hub,
		auditor:    auditor,
		retention:  retention,
		validator:  validator,
		log:        log,
	}, nil
}

// Start runs the application until ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	if a.auditor != nil {
		a.auditor.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.httpServer.Run(gctx)
	})
	if a.retention != nil {
		g.Go(func() error {
			return a.retention.Run(gctx)
		})
	}

	err := g.Wait()
	a.shutdown()
	return err
}

func (a *Application) shutdown() {
	a.hub.CloseAll()
	if a.auditor != nil {
		a.auditor.Stop()
	}
	a.validator.Close()
}
