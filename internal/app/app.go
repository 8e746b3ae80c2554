// Package app assembles the portal's collaborators from configuration. It is
// shared by the HTTP portal and the terminal client.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/auth"
	"github.com/stemsi/exstem-portal/internal/backend"
	"github.com/stemsi/exstem-portal/internal/capture"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/messaging"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/proctor"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/session"
	"github.com/stemsi/exstem-portal/internal/worker"
)

// App holds the long-lived collaborators shared by every exam controller.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Backend  *backend.Client
	Device   capture.Device
	Analyzer proctor.Analyzer
	Reports  repository.ReportRepository
	Notifier messaging.Notifier

	rdb     *redis.Client
	workers []func(context.Context)
	closers []func()
}

// New connects to every configured store and service. The caller must Close
// the result.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	a.Backend = backend.NewClient(cfg.BackendURL, backend.Paths{
		Questions: cfg.QuestionsPath,
		Submit:    cfg.SubmitPath,
		Login:     cfg.LoginPath,
		Logout:    cfg.LogoutPath,
	}, cfg.BackendTimeout, log)

	device, err := capture.NewDevice(capture.DeviceConfig{
		Driver:      cfg.CaptureDriver,
		Format:      cfg.CaptureFormat,
		Device:      cfg.CaptureDevice,
		Audio:       cfg.CaptureAudio,
		AudioFormat: cfg.CaptureAudioFormat,
	}, log)
	if err != nil {
		return nil, err
	}
	a.Device = device

	steps := []func(context.Context) error{a.setupAnalyzer, a.setupReports, a.setupNotifier}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// NewController builds an exam controller for one candidate.
func (a *App) NewController(sess *auth.Session, reportSlot string) *session.Controller {
	return session.New(session.Config{
		Duration:    a.Config.ExamDuration,
		ExamDetails: a.Config.ExamDetails,
		ReportSlot:  reportSlot,
	}, session.Deps{
		Auth:     sess,
		Device:   a.Device,
		Backend:  a.Backend,
		Analyzer: a.Analyzer,
		Reports:  a.Reports,
		Notifier: a.Notifier,
		Log:      a.Log,
	})
}

// StartWorkers launches background workers until ctx ends.
func (a *App) StartWorkers(ctx context.Context) {
	for _, w := range a.workers {
		go w(ctx)
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) setupAnalyzer(ctx context.Context) error {
	var archive proctor.Archive
	if a.Config.ArchiveEnabled {
		switch a.Config.ArchiveDriver {
		case "local":
			if err := os.MkdirAll(a.Config.ArchiveLocalPath, 0o755); err != nil {
				return fmt.Errorf("create archive dir: %w", err)
			}
			archive = &proctor.LocalArchive{Root: a.Config.ArchiveLocalPath}
		case "minio", "s3":
			m, err := proctor.NewMinioArchive(proctor.MinioConfig{
				Endpoint:  a.Config.ArchiveEndpoint,
				AccessKey: a.Config.ArchiveAccessKey,
				SecretKey: a.Config.ArchiveSecretKey,
				Bucket:    a.Config.ArchiveBucket,
				UseSSL:    a.Config.ArchiveUseSSL,
			})
			if err != nil {
				return err
			}
			bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := m.EnsureBucket(bucketCtx); err != nil {
				return err
			}
			archive = m
		default:
			return fmt.Errorf("unknown ARCHIVE_DRIVER %q", a.Config.ArchiveDriver)
		}
		a.Log.Info().Str("driver", a.Config.ArchiveDriver).Str("min_level", a.Config.ArchiveMinLevel).Msg("Recording archive enabled")
	}

	analyzer, err := proctor.Build(proctor.Options{
		Mode: a.Config.ProctorMode,
		LLM: proctor.LLMConfig{
			BaseURL: a.Config.AIBaseURL,
			APIKey:  a.Config.AIAPIKey,
			Model:   a.Config.AIModel,
			Timeout: a.Config.AITimeout,
		},
		Archive:  archive,
		MinLevel: model.SuspicionLevel(a.Config.ArchiveMinLevel),
	}, a.Log)
	if err != nil {
		return err
	}
	a.Analyzer = analyzer
	return nil
}

func (a *App) redis(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := database.NewRedisClient(ctx, a.Config.RedisURL, a.Log)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return rdb, nil
}

func (a *App) setupReports(ctx context.Context) error {
	switch a.Config.ReportDriver {
	case "sqlite":
		db, err := database.NewSQLite(ctx, a.Config.SQLitePath, a.Log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.Reports = repository.NewSQLiteReportRepository(db)
	case "redis":
		rdb, err := a.redis(ctx)
		if err != nil {
			return err
		}
		a.Reports = repository.NewRedisReportRepository(rdb, a.Config.ReportTTL)
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, a.Config.DatabaseURL, a.Config.MaxDBConns, a.Log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.Reports = repository.NewPostgresReportRepository(pool)
	default:
		return fmt.Errorf("unknown REPORT_DRIVER %q", a.Config.ReportDriver)
	}
	a.Log.Info().Str("driver", a.Config.ReportDriver).Msg("Report store ready")
	return nil
}

func (a *App) setupNotifier(ctx context.Context) error {
	if a.Config.AMQPURL == "" {
		a.Notifier = messaging.NopNotifier{}
		return nil
	}

	mq, err := messaging.NewRabbitMQClient(a.Config.AMQPURL, a.Config.AMQPQueue)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = mq.Close() })

	if !a.Config.EventsOutbox {
		a.Notifier = mq
		a.Log.Info().Str("queue", a.Config.AMQPQueue).Msg("Publishing exam events to RabbitMQ")
		return nil
	}

	rdb, err := a.redis(ctx)
	if err != nil {
		return err
	}
	a.Notifier = worker.NewRedisOutbox(rdb)
	ew := worker.NewEventWorker(rdb, mq, a.Log)
	a.workers = append(a.workers, ew.Start)
	a.Log.Info().Str("queue", a.Config.AMQPQueue).Msg("Publishing exam events through the Redis outbox")
	return nil
}
