package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/webshot/internal/metrics"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/target"
)

// ErrUnexpected marks failures that are not ordinary capture errors: a
// panicking capturer or one that reports success without an artifact.
var ErrUnexpected = errors.New("unexpected capture failure")

// Runner executes a single target: permit, capture, release.
type Runner struct {
	capturer screenshot.Capturer
	pool     *Pool
	limiter  *rate.Limiter
	clock    screenshot.Clock
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Run never panics and never returns an error; every outcome is a TaskResult.
func (r *Runner) Run(ctx context.Context, t target.Target) screenshot.TaskResult {
	res := screenshot.TaskResult{Target: t, Started: r.clock.Now()}

	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("not admitted: %w", err)
		return res
	}

	waitStart := r.clock.Now()
	permit, err := r.pool.Acquire(ctx)
	if err != nil {
		res.Err = fmt.Errorf("not admitted: %w", err)
		return res
	}
	defer permit.Release()
	metrics.ObservePermitWait(r.clock.Now().Sub(waitStart))

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			res.Err = fmt.Errorf("start delay: %w", err)
			return res
		}
	}
	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("not started: %w", err)
		return res
	}

	ctx, span := r.tracer.Start(ctx, "capture", trace.WithAttributes(
		attribute.String("webshot.target", t.Original),
		attribute.String("webshot.url", t.URL),
		attribute.String("webshot.kind", string(t.Kind())),
	))
	defer span.End()

	metrics.IncActiveCaptures()
	started := r.clock.Now()
	res.Started = started
	artifact, err := r.capture(ctx, t)
	res.Duration = r.clock.Now().Sub(started)
	metrics.DecActiveCaptures()

	switch {
	case err != nil:
		res.Err = err
	case artifact.Path == "":
		res.Err = fmt.Errorf("%w: capturer returned no artifact path", ErrUnexpected)
	default:
		res.ArtifactPath = artifact.Path
		res.Bytes = artifact.Bytes
		res.SHA256 = artifact.SHA256
	}

	metrics.ObserveCapture(t.URL, res.Success(), res.Duration)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		r.logger.Debug("capture failed",
			zap.String("target", t.Original),
			zap.Duration("duration", res.Duration),
			zap.Error(res.Err),
		)
	} else {
		span.SetAttributes(attribute.String("webshot.artifact", res.ArtifactPath))
		r.logger.Debug("capture succeeded",
			zap.String("target", t.Original),
			zap.String("artifact", res.ArtifactPath),
			zap.Duration("duration", res.Duration),
		)
	}
	return res
}

func (r *Runner) capture(ctx context.Context, t target.Target) (artifact screenshot.Artifact, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		artifact, err = r.capturer.Capture(ctx, t)
	})
	if rec := pc.Recovered(); rec != nil {
		return screenshot.Artifact{}, fmt.Errorf("%w: %w", ErrUnexpected, rec.AsError())
	}
	if err != nil && !errors.Is(err, screenshot.ErrCapture) {
		err = fmt.Errorf("%w: %w", screenshot.ErrCapture, err)
	}
	return artifact, err
}

func newLimiter(startRate float64) *rate.Limiter {
	if startRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(startRate), 1)
}
