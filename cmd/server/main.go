package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	sloggorm "github.com/orandin/slog-gorm"
	otellib "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/range-medical/consent-api/cmd/server/internal/routes"
	routesv1 "github.com/range-medical/consent-api/cmd/server/internal/routes/v1"
	"github.com/range-medical/consent-api/internal/catalog"
	"github.com/range-medical/consent-api/internal/config"
	"github.com/range-medical/consent-api/internal/crm"
	"github.com/range-medical/consent-api/internal/document"
	"github.com/range-medical/consent-api/internal/logger"
	"github.com/range-medical/consent-api/internal/migrations"
	"github.com/range-medical/consent-api/internal/notify"
	"github.com/range-medical/consent-api/internal/otel"
	"github.com/range-medical/consent-api/internal/pipeline"
	"github.com/range-medical/consent-api/internal/store"
	"github.com/range-medical/consent-api/internal/upload"
)

const name string = "github.com/range-medical/consent-api/server"

var tracer = otellib.Tracer(name)

type server struct {
	router       *echo.Echo
	config       *config.Config
	db           *gorm.DB
	otelShutdown func(context.Context) error
}

func buildUploader(cfg *config.StorageConfig) (upload.Uploader, error) {
	switch cfg.Backend {
	case "s3":
		if cfg.S3 == nil {
			return nil, errors.New("storage backend is s3 but storage.s3 is not configured")
		}
		return upload.NewMinioUploader(
			cfg.S3.Endpoint,
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			cfg.S3.SSLEnabled,
			cfg.S3.BucketName,
			cfg.S3.PublicBaseURL,
		)
	case "azure":
		if cfg.Azure == nil {
			return nil, errors.New("storage backend is azure but storage.azure is not configured")
		}
		return upload.NewAzureUploader(
			cfg.Azure.AccountName,
			cfg.Azure.AccountKey,
			cfg.Azure.ServiceURL,
			cfg.Azure.Container,
		)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func initServer(ctx context.Context) (*server, error) {
	server := new(server)

	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize server config: %w", err)
	}
	server.config = cfg

	shutdownOTel, err := otel.SetupOTelSDK(ctx, cfg.Logging.UseOTLP)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL SDK: %w", err)
	}
	defer func() {
		// Something failed to initialize, make sure everything gets flushed to the server
		if server.otelShutdown == nil {
			otelShutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				time.Second*time.Duration(cfg.GracefulShutdownSecs),
			)
			defer cancel()

			if err = shutdownOTel(otelShutdownCtx); err != nil {
				logger.Logger.Error("failed to flush otel data", "error", err)
			}
		}
	}()

	ctx, span := tracer.Start(ctx, "initServer")
	defer span.End()

	logger.LogLevel.Set(slog.Level(cfg.Logging.App.Level))
	gormLogger := slog.New(logger.Handler)

	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)
	if cfg.Logging.Gorm.TraceQueries {
		sg = sloggorm.New(
			sloggorm.WithHandler(gormLogger.Handler()),
			sloggorm.WithTraceAll(),
			sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
		)
	}

	span.AddEvent("initialized gorm logging")

	db, err := gorm.Open(
		postgres.Open(cfg.PostgresDSN()),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire underlying database connection")
		return nil, fmt.Errorf("failed to acquire underlying database connection: %w", err)
	}

	// Configure db connection pool
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(cfg.Postgres.ConnectionTTL)

	span.AddEvent("initialized database connection")

	err = db.Use(gormtracing.NewPlugin())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to add otel plugin to gorm")
		return nil, fmt.Errorf("failed to add otel plugin to gorm: %w", err)
	}

	span.AddEvent("added the otel plugin to gorm")

	err = migrations.Up(ctx, db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to perform database migrations")
		return nil, fmt.Errorf("failed to perform database migrations: %w", err)
	}

	span.AddEvent("migrated database to latest version")

	catalogs, err := catalog.LoadDir(cfg.CatalogDir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load consent catalogs")
		return nil, fmt.Errorf("failed to load consent catalogs: %w", err)
	}

	span.AddEvent("loaded consent catalogs")

	uploader, err := buildUploader(cfg.Storage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct uploader")
		return nil, fmt.Errorf("failed to construct uploader: %w", err)
	}

	span.AddEvent("initialized artifact storage")

	var syncer crm.Syncer
	if cfg.CRM != nil && cfg.CRM.Enabled {
		syncer = crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.APIKey, cfg.CRM.LocationID)
		span.AddEvent("initialized crm client")
	}

	var notifier notify.Notifier
	if cfg.Notify != nil && cfg.Notify.Enabled {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL)
		span.AddEvent("initialized staff notifier")
	}

	controller := pipeline.NewController(
		catalogs,
		document.NewAssembler(document.Clinic{
			Name:    cfg.Clinic.Name,
			Address: cfg.Clinic.Address,
			Phone:   cfg.Clinic.Phone,
		}),
		upload.NewRetryUploader(uploader),
		store.NewConsentStore(db),
		syncer,
		notifier,
	)

	e, err := routes.BuildEcho(logger.Logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error building router")
		return nil, fmt.Errorf("error building router: %w", err)
	}

	span.AddEvent("created echo router")

	routesv1.AddRoutes(e, routesv1.NewHandler(controller, catalogs), cfg)

	server.otelShutdown = shutdownOTel
	server.router = e
	server.db = db

	return server, nil
}

func (s *server) Start(_ context.Context) error {
	logger.Logger.Info("Starting services...")

	err := s.router.Start(s.config.ListenAddress)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *server) Shutdown() error {
	var errs error

	ctx, cancelTimeout := context.WithTimeout(
		context.Background(),
		time.Second*time.Duration(s.config.GracefulShutdownSecs),
	)
	defer cancelTimeout()

	if err := s.router.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	if s.otelShutdown != nil {
		errs = errors.Join(errs, s.otelShutdown(ctx))
	}

	return errs
}

func main() {
	ctx, cancelSignal := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)

	logger.InitSlog()

	server, err := initServer(ctx)
	if err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	errch := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Got shutdown signal!")
		errch <- server.Shutdown()
		close(errch)
	}()

	if err := server.Start(ctx); err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	if err := <-errch; err != nil {
		logger.Logger.Error("Error shutting down server", "error", err)
	}

	cancelSignal()
}
