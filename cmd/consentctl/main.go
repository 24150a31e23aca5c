package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/range-medical/consent-api/cmd/consentctl/cmds"
	"github.com/range-medical/consent-api/internal/logger"
	otelconsentapi "github.com/range-medical/consent-api/internal/otel"
)

var tracer = otel.Tracer("github.com/range-medical/consent-api/consentctl")

func runApp(ctx context.Context) int {
	useOTLP, err := strconv.ParseBool(os.Getenv("USE_OTLP"))
	if err != nil {
		useOTLP = false
	}

	shutdown, err := otelconsentapi.SetupOTelSDK(ctx, useOTLP)
	if err != nil {
		logger.Logger.Warn("failed to setup otel sdk")
	}
	defer func() {
		fail := shutdown(ctx)
		if fail != nil {
			logger.Logger.Warn("no clean shutdown for otel", "error", fail)
		}
	}()

	ctx, span := tracer.Start(ctx, "Consentctl", trace.WithNewRoot())
	defer span.End()

	err = cmds.Execute(ctx)
	if err != nil {
		logger.Logger.Error("error executing subcommands", "error", err)
		return 1
	}

	return 0
}

func main() {
	logger.LogLevel.Set(slog.LevelWarn)
	logger.InitSlog()

	ctx := context.Background()

	os.Exit(runApp(ctx))
}
