package cmds

import (
	"context"
	"fmt"
	"log/slog"

	sloggorm "github.com/orandin/slog-gorm"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/range-medical/consent-api/internal/config"
	"github.com/range-medical/consent-api/internal/logger"
	"github.com/range-medical/consent-api/internal/store"
)

var tracer = otel.Tracer("github.com/range-medical/consent-api/cmd/consentctl/cmds")

var rootCmd = &cobra.Command{
	Use:   "consentctl",
	Short: "Operator tooling for the consent intake pipeline",
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func openStore(_ context.Context) (*store.ConsentStore, *config.Config, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	sg := sloggorm.New(
		sloggorm.WithHandler(logger.Handler),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)

	db, err := gorm.Open(
		postgres.Open(cfg.PostgresDSN()),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return store.NewConsentStore(db), cfg, nil
}
