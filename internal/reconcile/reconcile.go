package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/metal-toolbox/devicesync/internal/jamf"
	"github.com/metal-toolbox/devicesync/internal/metrics"
	"github.com/metal-toolbox/devicesync/internal/model"
)

const pkgName = "internal/reconcile"

var (
	ErrBatchCancelled = errors.New("batch cancelled")
	ErrBatchPanic     = errors.New("batch fatal error, check logs for details")
)

// Outcome of a single record.
type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeDryRun  Outcome = "dryrun"
	OutcomeFailed  Outcome = "failed"
)

// DeviceAPI is the remote device service a batch is applied to.
type DeviceAPI interface {
	// Resolve returns jamf.ErrLookupNotFound when the serial has no device.
	Resolve(ctx context.Context, session *jamf.Session, serial string) (*model.RemoteDevice, error)
	UpdateRecord(ctx context.Context, session *jamf.Session, device *model.RemoteDevice, record *model.DeviceRecord) error
	Confirm(ctx context.Context, session *jamf.Session, device *model.RemoteDevice)
}

// Runner applies device records one at a time, in order.
type Runner struct {
	api     DeviceAPI
	session *jamf.Session
	dryRun  bool
	confirm bool
}

// Option sets optional Runner parameters.
type Option func(*Runner)

// WithDryRun resolves records without updating them.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) {
		r.dryRun = dryRun
	}
}

// WithConfirm reads each device back after it is updated.
func WithConfirm(confirm bool) Option {
	return func(r *Runner) {
		r.confirm = confirm
	}
}

// NewRunner returns a Runner, the session must be open.
func NewRunner(api DeviceAPI, session *jamf.Session, opts ...Option) *Runner {
	r := &Runner{
		api:     api,
		session: session,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run applies the records and returns the batch counts.
//
// A device missing for a serial number is counted as an error and the batch
// continues. Any other failure stops the batch, the returned result then only
// reflects the records processed up to the failure.
func (r *Runner) Run(ctx context.Context, records model.Records) (result *model.BatchResult, err error) {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"reconcile.Run",
		trace.WithAttributes(attribute.Int("records", len(records))),
	)
	defer span.End()

	start := time.Now()
	result = &model.BatchResult{
		RunID:  uuid.New(),
		DryRun: r.dryRun,
	}

	slog.Info("Running batch", "runID", result.RunID.String(), "records", len(records), "dryRun", r.dryRun)

	defer func() {
		if rec := recover(); rec != nil {
			err = r.handlePanic(rec)
		}

		result.Duration = time.Since(start)
		result.Renewals = r.session.Renewals()

		state := "succeeded"
		if err != nil {
			state = "failed"
			span.SetStatus(codes.Error, err.Error())
		}

		metrics.BatchRunTimeSummary.With(
			prometheus.Labels{"state": state},
		).Observe(result.Duration.Seconds())
	}()

	for i := range records {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, errors.Wrap(ErrBatchCancelled, ctxErr.Error())
		}

		record := &records[i]

		outcome, device, err := r.process(ctx, record)
		metrics.RecordsProcessed.WithLabelValues(string(outcome)).Inc()

		switch outcome {
		case OutcomeSkipped:
			result.Errored++
			result.Skipped = append(result.Skipped, record.Serial)

			continue
		case OutcomeFailed:
			slog.With(record.AsLogFields()...).Error("record failed, stopping batch",
				"position", i+1,
				"error", err,
			)

			return result, err
		}

		result.Updated++

		if _, err := r.session.MaybeRenew(ctx); err != nil {
			slog.Error("session token renewal failed, stopping batch", "error", err)
			return result, err
		}

		if r.confirm && outcome == OutcomeUpdated {
			r.api.Confirm(ctx, r.session, device)
		}
	}

	return result, nil
}

// process resolves and updates a single record, the resolved device is
// returned with the updated and dryrun outcomes.
func (r *Runner) process(ctx context.Context, record *model.DeviceRecord) (Outcome, *model.RemoteDevice, error) {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"reconcile.process",
		trace.WithAttributes(attribute.String("serial", record.Serial)),
	)
	defer span.End()

	logger := slog.With(record.AsLogFields()...)
	logger.Info("finding device record")

	device, err := r.api.Resolve(ctx, r.session, record.Serial)
	if err != nil {
		if !jamf.IsFatal(err) {
			logger.Error("no Jamf device found for serial number, continuing")
			return OutcomeSkipped, nil, nil
		}

		span.SetStatus(codes.Error, err.Error())

		return OutcomeFailed, nil, errors.Wrap(err, "lookup "+record.Serial)
	}

	logger = logger.With("deviceID", device.ID)

	if r.dryRun {
		logger.Info("dry run, would update device record")
		return OutcomeDryRun, device, nil
	}

	logger.Info("updating device record")

	if err := r.api.UpdateRecord(ctx, r.session, device, record); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return OutcomeFailed, nil, errors.Wrap(err, "update "+record.Serial)
	}

	return OutcomeUpdated, device, nil
}

func (r *Runner) handlePanic(rec any) error {
	slog.Error("!!panic occurred", "rec", fmt.Sprint(rec), "stack", string(debug.Stack()))
	return ErrBatchPanic
}
