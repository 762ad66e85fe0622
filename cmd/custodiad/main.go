package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/custodia-legal/custodia/internal/auditor"
	"github.com/custodia-legal/custodia/internal/blob"
	"github.com/custodia-legal/custodia/internal/config"
	"github.com/custodia-legal/custodia/internal/crypto"
	"github.com/custodia-legal/custodia/internal/export"
	"github.com/custodia-legal/custodia/internal/gate"
	"github.com/custodia-legal/custodia/internal/ledger"
	custodiaslack "github.com/custodia-legal/custodia/internal/messenger/slack"
	"github.com/custodia-legal/custodia/internal/notify"
	"github.com/custodia-legal/custodia/internal/server"
	"github.com/custodia-legal/custodia/internal/store/postgres"
	redisstore "github.com/custodia-legal/custodia/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("CUSTODIA_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("CUSTODIA_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	// Object storage for exhibit bytes.
	blobs, err := blob.NewFSStore(cfg.Blob.Root)
	if err != nil {
		return err
	}

	// Content hasher and optional signer.
	hasher, err := crypto.NewHasher(crypto.Algorithm(cfg.Integrity.HashAlgorithm))
	if err != nil {
		return err
	}

	var signer crypto.Signer = crypto.NoSigner{}
	if cfg.Integrity.SigningKeyPath != "" {
		ed, err := crypto.LoadEd25519Signer(cfg.Integrity.SigningKeyPath)
		if err != nil {
			// Exports degrade to hash-only rather than blocking startup.
			log.Warn().Err(err).Msg("signing key unusable, exports will be unsigned")
		} else {
			signer = ed
		}
	}

	// Notification fan-out: redis always, Slack when configured.
	sinks := []notify.Sink{notify.NewPubSubSink(pubsub, redisstore.IntegrityChannel)}
	if cfg.Slack.BotToken != "" {
		slackMessenger := custodiaslack.NewSlackMessenger(slacklib.New(cfg.Slack.BotToken))
		sinks = append(sinks, notify.NewMessengerSink(slackMessenger, cfg.Slack.AlertChannel))
		log.Info().Str("channel", cfg.Slack.AlertChannel).Msg("Slack alerting enabled")
	}
	broadcaster := notify.New(sinks...)

	// Ledger services.
	recorder := ledger.NewRecorder(store.Ledger())
	verifier := ledger.NewVerifier(store.Ledger())

	// Integrity gate.
	strictWorkspaces := make(map[uuid.UUID]bool, len(cfg.Integrity.StrictWorkspaces))
	for _, id := range cfg.Integrity.StrictWorkspaces {
		strictWorkspaces[id] = true
	}
	integrityGate := gate.New(store.Quarantines(), store.Alerts(), store.AuditRuns(), recorder, broadcaster, gate.Config{
		CacheTTL:         cfg.Integrity.GateCacheTTL,
		StrictMode:       cfg.Integrity.StrictMode,
		StrictWorkspaces: strictWorkspaces,
		MaxProofAge:      cfg.Integrity.MaxProofAge,
	}, nil)

	// Asset auditor.
	assetAuditor := auditor.New(
		store.Exhibits(),
		store.Tombstones(),
		store.Alerts(),
		store.AuditRuns(),
		blobs,
		hasher,
		verifier,
		recorder,
		integrityGate,
		cfg.Integrity.AuditRateLimit,
	)

	// Report packager (certificates via the ops listener; package builds
	// are driven by the case-management service).
	packager := export.NewPackager(store.Exhibits(), blobs, hasher, signer, verifier, recorder)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Operational HTTP listener.
	srv := server.New(cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, integrityGate, packager, store.AuditRuns())

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting ops server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Continuous audit scheduler.
	go runScheduler(ctx, assetAuditor, cfg.Integrity.Workspaces, cfg.Integrity.AuditInterval)

	// Observe integrity transitions published by other replicas.
	if len(cfg.Integrity.Workspaces) > 0 {
		channels := make([]string, 0, len(cfg.Integrity.Workspaces))
		for _, workspaceID := range cfg.Integrity.Workspaces {
			channels = append(channels, redisstore.IntegrityChannel(workspaceID))
		}
		listener := notify.NewListener(pubsub, func(event notify.Event) {
			log.Info().
				Stringer("workspace_id", event.WorkspaceID).
				Str("kind", event.Kind).
				Msg("integrity transition observed")
		})
		go func() {
			if listenErr := listener.Listen(ctx, channels...); listenErr != nil {
				log.Error().Err(listenErr).Msg("integrity listener stopped")
			}
		}()
	}

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// runScheduler runs a continuous audit of every configured workspace on
// each tick. Workspaces are audited one at a time; a failed workspace is
// logged and never blocks the rest of the round.
func runScheduler(ctx context.Context, assetAuditor *auditor.Auditor, workspaces []uuid.UUID, interval time.Duration) {
	if len(workspaces) == 0 {
		log.Info().Msg("no workspaces configured, audit scheduler idle")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, workspaceID := range workspaces {
				report, err := assetAuditor.ContinuousAudit(ctx, workspaceID)
				if err != nil {
					log.Error().Err(err).Stringer("workspace_id", workspaceID).Msg("scheduled audit failed")
					continue
				}
				log.Info().
					Stringer("workspace_id", workspaceID).
					Bool("valid", report.Valid).
					Int("checked", report.Checked).
					Int("failures", len(report.Failures)).
					Msg("scheduled audit finished")
			}
		}
	}
}
