// Package app assembles the collaborators selected by the configuration and
// runs the HTTP server and the alert worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/FormSink/internal/api"
	"github.com/dharsanguruparan/FormSink/internal/config"
	"github.com/dharsanguruparan/FormSink/internal/counter"
	"github.com/dharsanguruparan/FormSink/internal/database"
	"github.com/dharsanguruparan/FormSink/internal/files"
	"github.com/dharsanguruparan/FormSink/internal/mail"
	"github.com/dharsanguruparan/FormSink/internal/model"
	"github.com/dharsanguruparan/FormSink/internal/notify"
	"github.com/dharsanguruparan/FormSink/internal/processing"
	"github.com/dharsanguruparan/FormSink/internal/queue"
	"github.com/dharsanguruparan/FormSink/internal/repository"
	"github.com/dharsanguruparan/FormSink/internal/rows"
	"github.com/dharsanguruparan/FormSink/internal/s3storage"
	"github.com/dharsanguruparan/FormSink/internal/schema"
	"github.com/dharsanguruparan/FormSink/internal/signing"
	"github.com/dharsanguruparan/FormSink/internal/spam"
	"github.com/dharsanguruparan/FormSink/internal/storage"
	"github.com/dharsanguruparan/FormSink/internal/submission"
	"github.com/dharsanguruparan/FormSink/internal/worker"
)

const counterPrefix = "formsink:"

// ErrWorkerNeedsRedis is returned by RunWorker without a Redis address.
var ErrWorkerNeedsRedis = errors.New("the alert worker requires FORMSINK_REDIS_ADDR")

// Counters backs rate buckets and the mail quota.
type Counters interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// Tables is the tabular store.
type Tables interface {
	schema.Store
	rows.Store
}

// App holds every wired collaborator.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Counters  Counters
	Tables    Tables
	Audit     submission.AuditLog
	Blobs     files.BlobStore
	Sender    mail.Sender
	Operator  mail.Sender
	Signer    *signing.Signer
	Processor *submission.Processor

	dispatcher *processing.Dispatcher
	closers    []func()
}

// New connects the backends named by cfg and falls back to in-memory
// collaborators for those left unset.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Signer: signing.NewSigner(cfg.SigningSecret)}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if !cfg.UseSMTP() {
		logger.Warn("no SMTP relay configured, notifications stay in memory")
	}
	a.Sender = newSender(cfg, mail.NewQuota(a.Counters, cfg.DailyQuota))
	// Alerts report quota exhaustion among other failures, so they bypass it.
	a.Operator = newSender(cfg, nil)

	var alerter submission.Alerter
	if cfg.UseRedis() {
		client := asynq.NewClient(redisOpt(cfg))
		a.closers = append(a.closers, func() { _ = client.Close() })
		alerter = queue.NewAlerter(client)
	} else {
		a.dispatcher = processing.New(a.Operator, cfg.OperatorEmail, cfg.AlertWorkers, logger)
		alerter = a.dispatcher
	}

	var links files.Linker
	if cfg.BaseURL != "" {
		links = &files.SignedLinker{BaseURL: cfg.BaseURL, Signer: a.Signer}
	} else if cfg.UseS3() && cfg.S3PublicURL == "" {
		logger.Warn("neither base_url nor s3_public_url set, stored file links will expire")
	}
	gate := spam.NewGate(a.Counters, spam.Options{
		Limit:          cfg.Spam.HourlyLimitFor,
		MaxURLs:        cfg.Spam.MaxURLs,
		Blocklist:      cfg.Spam.Blocklist,
		BlockedScripts: cfg.Spam.BlockedScripts,
	}, logger)
	a.Processor = submission.NewProcessor(submission.Deps{
		Gate:     gate,
		Schema:   schema.NewManager(a.Tables, logger),
		Rows:     rows.NewBuilder(a.Tables, files.NewIngester(a.Blobs, links, logger)),
		Notifier: notify.NewComposer(a.Sender),
		Audit:    a.Audit,
		Quota:    a.Sender,
		Alerter:  alerter,
	}, logger)
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	if cfg.UseRedis() {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		a.closers = append(a.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Counters = counter.NewRedis(client, counterPrefix)
	} else {
		a.Logger.Warn("no Redis configured, counters are per process")
		a.Counters = storage.NewMemoryCounter()
	}

	if cfg.UsePostgres() {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		a.Tables = repository.NewTableRepository(pool)
		a.Audit = repository.NewLogRepository(pool)
	} else {
		a.Logger.Warn("no database configured, submissions stay in memory")
		a.Tables = storage.NewMemoryStore()
		a.Audit = storage.NewMemoryLog()
	}

	if cfg.UseS3() {
		store, err := s3storage.New(cfg)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
		a.Blobs = store
	} else {
		a.Logger.Warn("no object storage configured, attachments stay in memory")
		a.Blobs = storage.NewMemoryBlobs("")
	}
	return nil
}

// Columns returns the stored schema of table.
func (a *App) Columns(ctx context.Context, table string) ([]model.Column, error) {
	return a.Tables.Columns(ctx, table)
}

// Rows returns up to limit of the newest rows of table, newest first.
func (a *App) Rows(ctx context.Context, table string, limit int) ([][]string, error) {
	switch t := a.Tables.(type) {
	case *repository.TableRepository:
		stored, err := t.Rows(ctx, table, limit)
		if err != nil {
			return nil, err
		}
		out := make([][]string, len(stored))
		for i, r := range stored {
			out[i] = r.Cells
		}
		return out, nil
	case *storage.MemoryStore:
		stored, err := t.Rows(table)
		if err != nil {
			return nil, err
		}
		var out [][]string
		for i := len(stored) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			out = append(out, stored[i])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("table store %T cannot list rows", a.Tables)
	}
}

// Serve runs the HTTP API, plus the in-process alert pool when no queue is
// configured, until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.dispatcher != nil {
		a.dispatcher.Start(ctx)
		g.Go(func() error {
			a.dispatcher.Wait()
			return nil
		})
	}
	srv := api.New(api.Options{Address: a.Config.Address, MaxBodySize: a.Config.MaxBodySize}, a.Processor, a.Signer, a.Blobs, a.Logger)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	return g.Wait()
}

// Close releases every connection opened by New.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// RunWorker consumes operator alerts from the asynq queue until ctx is
// cancelled.
func RunWorker(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if !cfg.UseRedis() {
		return ErrWorkerNeedsRedis
	}
	server := asynq.NewServer(redisOpt(cfg), asynq.Config{Concurrency: cfg.AlertWorkers})
	processor := worker.NewProcessor(newSender(cfg, nil), cfg.OperatorEmail, logger)

	if err := server.Start(processor.Handler()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	logger.Info("alert worker started", zap.Int("concurrency", cfg.AlertWorkers))
	<-ctx.Done()
	server.Shutdown()
	return nil
}

// newSender returns the SMTP sender when a relay is configured, otherwise an
// in-memory outbox. A nil quota sends without limit.
func newSender(cfg *config.Config, quota *mail.Quota) mail.Sender {
	if !cfg.UseSMTP() {
		return mail.NewOutbox(quota)
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, quota)
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
