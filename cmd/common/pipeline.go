package common

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lexwatch/tribsync/internal/audit"
	"github.com/lexwatch/tribsync/internal/database"
	"github.com/lexwatch/tribsync/internal/metrics"
	"github.com/lexwatch/tribsync/internal/notifier"
	"github.com/lexwatch/tribsync/internal/pdffetch"
	"github.com/lexwatch/tribsync/internal/portal"
	"github.com/lexwatch/tribsync/internal/summarizer"
	syncpkg "github.com/lexwatch/tribsync/internal/sync"
	"github.com/lexwatch/tribsync/internal/vault"
)

// Pipeline bundles the fully wired orchestrator with the handles the
// commands need alongside it.
type Pipeline struct {
	Orchestrator *syncpkg.Orchestrator
	SyncLogs     *database.SyncLogRepository
	Documents    *database.DocumentRepository

	closers []func() error
}

// Close releases the pipeline's connections.
func (p *Pipeline) Close() {
	for _, closer := range p.closers {
		_ = closer()
	}
}

type portalDriver struct {
	scraper *portal.Scraper
}

func (d portalDriver) Run(ctx context.Context, creds *vault.Materialized) (syncpkg.PortalSession, error) {
	sess, err := d.scraper.Run(ctx, creds)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// BuildPipeline wires the full sync pipeline from configuration.
func BuildPipeline(deps *CommandDeps) (*Pipeline, error) {
	cfg := deps.Config
	log := deps.Logger

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	p := &Pipeline{
		SyncLogs:  database.NewSyncLogRepository(db),
		Documents: database.NewDocumentRepository(db),
	}
	p.closers = append(p.closers, db.Close)

	credentials := database.NewCredentialRepository(db)
	preferences := database.NewPreferenceRepository(db)
	auditEvents := database.NewAuditEventRepository(db)

	trail := audit.NewTrail(auditEvents, cfg.Storage.AuditFallbackPath, log)

	var locker syncpkg.Locker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		p.closers = append(p.closers, client.Close)
		locker = syncpkg.NewRunLock(client, cfg.Redis.LockTTL)
	}

	p.Orchestrator = syncpkg.New(syncpkg.Deps{
		Credentials: credentials,
		Documents:   p.Documents,
		SyncLogs:    p.SyncLogs,
		Secrets:     vault.NewClient(cfg.Vault.BaseURL, cfg.Vault.Token, cfg.Vault.Timeout),
		Portal:      portalDriver{scraper: portal.NewScraper(cfg.Portal, log)},
		Fetcher:     pdffetch.NewFetcher(cfg.Portal, log),
		Blobs:       pdffetch.NewFileStore(cfg.Storage.BlobRoot),
		Summarizer:  summarizer.New(cfg.Summarizer, log),
		Notifier:    notifier.New(preferences, notifier.NewHTTPGateway(cfg.Notifier), log),
		Audit:       trail,
		Metrics:     metrics.New(nil),
		Locker:      locker,
		Logger:      log,
	})

	return p, nil
}
