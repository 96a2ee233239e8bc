package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/equinix-labs/otel-init-go/otelinit"
	"go.opentelemetry.io/otel"

	"github.com/metal-toolbox/devicesync/internal/configuration"
	"github.com/metal-toolbox/devicesync/internal/jamf"
	"github.com/metal-toolbox/devicesync/internal/log"
	"github.com/metal-toolbox/devicesync/internal/metrics"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/metal-toolbox/devicesync/internal/profiling"
	"github.com/metal-toolbox/devicesync/internal/reconcile"
	"github.com/metal-toolbox/devicesync/internal/records"
	"github.com/metal-toolbox/devicesync/internal/version"
)

// nolint:gocyclo // command wiring is sequential
func runSync(ctx context.Context, args *model.Args) error {
	start := time.Now()

	config, err := configuration.Load(args)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}

	log.SetLevel(config.LogLevel)

	var logOutput io.Writer = os.Stderr

	if config.LogsOptions.Dir != "" {
		fh, errLog := log.OpenRunFile(config.LogsOptions.Dir, config.LogsOptions.RetentionDays, start)
		if errLog != nil {
			slog.Error("Failed to open log file", "error", errLog)
			return errLog
		}
		defer fh.Close()

		logOutput = io.MultiWriter(os.Stderr, fh)
		log.InitLoggerWithOutput(logOutput)
	}

	slog.Info("Configuration loaded", config.AsLogFields()...)
	slog.With(version.Current().AsLogFields()...).Info("devicesync starting")

	if config.MetricsOptions.ListenAddress != "" {
		metrics.ListenAndServe(config.MetricsOptions.ListenAddress)
	}

	if err = version.ExportBuildInfoMetric(); err != nil {
		slog.Warn("Failed to export build info metric", "error", err)
	}

	if config.EnableProfiling {
		profiling.Enable()
	}

	logrusLogger := log.NewLogrusLogger(config.LogLevel, logOutput)
	otel.SetLogger(log.NewLogr(logrusLogger))

	ctx, otelShutdown := otelinit.InitOpenTelemetry(ctx, model.AppName)
	defer otelShutdown(ctx)

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(termChan)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancel the context when we receive a termination signal.
	go func() {
		select {
		case s := <-termChan:
			slog.Info("Received signal for termination, stopping after the current record...", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	batch, err := records.NewLoader(config.RecordsOptions.File).Load()
	if err != nil {
		slog.Error("Failed to load device records", "file", config.RecordsOptions.File, "error", err)
		return err
	}

	slog.Info("Device records loaded", "file", config.RecordsOptions.File, "records", len(batch))

	client, err := jamf.New(config.JamfOptions, jamf.WithLogger(logrusLogger))
	if err != nil {
		slog.Error("Failed to create Jamf client", "error", err)
		return err
	}

	session, err := client.NewSession()
	if err != nil {
		slog.Error("Failed to create Jamf session", "error", err)
		return err
	}

	if err = session.Open(ctx); err != nil {
		slog.Error("Failed to authenticate with Jamf", "error", err)
		return err
	}

	runner := reconcile.NewRunner(
		client,
		session,
		reconcile.WithDryRun(config.DryRun),
		reconcile.WithConfirm(config.JamfOptions.ConfirmUpdates),
	)

	result, err := runner.Run(ctx, batch)

	report(result, err, time.Since(start))

	if config.MetricsOptions.PushgatewayURL != "" {
		if errPush := metrics.Push(config.MetricsOptions.PushgatewayURL, result.RunID.String()); errPush != nil {
			slog.Warn("Failed to push metrics", "error", errPush)
		}
	}

	return err
}

// report logs the completion report of a batch.
func report(result *model.BatchResult, err error, elapsed time.Duration) {
	fields := append(result.AsLogFields(), "elapsed", elapsed.Round(time.Second).String())

	if err != nil {
		slog.With(fields...).Error("devicesync failed, batch stopped", "error", err)
		return
	}

	slog.With(fields...).Info("devicesync completed")
}
