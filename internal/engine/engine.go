// Package engine executes normalized, machine-generated analysis code
// against the active dataset inside a capability-scoped interpreter, under
// wall-clock and memory ceilings, and reports every outcome as a structured
// result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitalstat/vitalstat/internal/domain"
	"github.com/vitalstat/vitalstat/internal/frame"
	"github.com/vitalstat/vitalstat/internal/normalizer"
)

// Limits are the execution ceilings. Zero fields fall back to defaults.
type Limits struct {
	MaxWallTime    time.Duration
	MaxMemoryMB    int
	MaxOutputBytes int
}

// DefaultLimits returns the ceilings used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		MaxWallTime:    30 * time.Second,
		MaxMemoryMB:    512,
		MaxOutputBytes: 1 << 20,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxWallTime <= 0 {
		l.MaxWallTime = d.MaxWallTime
	}
	if l.MaxMemoryMB <= 0 {
		l.MaxMemoryMB = d.MaxMemoryMB
	}
	if l.MaxOutputBytes <= 0 {
		l.MaxOutputBytes = d.MaxOutputBytes
	}
	return l
}

// terminationGrace bounds how far past the wall ceiling a stuck worker may
// run before it is abandoned.
const terminationGrace = time.Second

// Engine is the sandboxed executor. Its only data-acquisition paths are the
// request's inline payload and the store's active projection.
type Engine struct {
	source domain.ProjectionSource
	limits Limits
}

var _ domain.CodeRunner = (*Engine)(nil)

// New returns an engine reading from source under the given limits.
func New(source domain.ProjectionSource, limits Limits) *Engine {
	return &Engine{source: source, limits: limits.withDefaults()}
}

// Limits returns the effective ceilings.
func (e *Engine) Limits() Limits { return e.limits }

// Execute runs one code submission to completion. It never returns an
// unclassified failure and never panics across its boundary; partial output
// is preserved on every failure path.
func (e *Engine) Execute(ctx context.Context, req domain.ExecutionRequest) domain.ExecutionResult {
	start := time.Now()
	res := domain.ExecutionResult{
		State:     domain.StatePreparing,
		Libraries: AvailableLibraries(),
	}

	// Preparing: bind the data source before any code runs, so a missing
	// dataset fails with no partial output.
	fr, derr := e.resolveData(ctx, req)
	if derr != nil {
		res.State = domain.StateFailed
		res.Err = derr
		res.Elapsed = time.Since(start)
		slog.Warn("Execution rejected", "kind", derr.Kind, "fileName", req.FileName)
		return res
	}

	code := normalizer.Normalize(req.Code)

	// Denied packages are rejected before eval: the interpreter's own
	// failure shapes for them do not name the capability.
	if derr := scanDenied(code); derr != nil {
		res.State = domain.StateFailed
		res.Err = derr
		res.Elapsed = time.Since(start)
		slog.Warn("Execution rejected", "kind", derr.Kind, "fileName", req.FileName)
		return res
	}

	buf := newCaptureBuffer(e.limits.MaxOutputBytes)

	sandbox, err := newSandbox(fr, buf)
	if err != nil {
		res.State = domain.StateFailed
		res.Err = domain.NewError(domain.KindRuntimeFailure, err.Error())
		res.Elapsed = time.Since(start)
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, e.limits.MaxWallTime)
	defer cancel()
	wd := startWatchdog(cancel, e.limits.MaxMemoryMB)

	res.State = domain.StateRunning
	slog.Debug("Execution running", "fileName", req.FileName, "rows", fr.NumRows())

	// Import clauses and statements take different yaegi parse modes, so
	// they are evaluated separately.
	imports, body := splitLeadingImports(code)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- domain.NewError(domain.KindRuntimeFailure, panicMessage(r))
			}
		}()
		if imports != "" {
			if _, evalErr := sandbox.EvalWithContext(runCtx, imports); evalErr != nil {
				done <- evalErr
				return
			}
		}
		_, evalErr := sandbox.EvalWithContext(runCtx, body)
		done <- evalErr
	}()

	var evalErr error
	select {
	case evalErr = <-done:
	case <-time.After(e.limits.MaxWallTime + terminationGrace):
		// The worker is wedged in a non-interruptible call. Abandon it;
		// its capture buffer is already ours.
		evalErr = context.DeadlineExceeded
	}

	peakMB, memBreached := wd.halt()
	res.Elapsed = time.Since(start)
	res.PeakMemoryMB = peakMB
	res.Output = buf.String()

	switch {
	case memBreached:
		res.State = domain.StateFailed
		res.Err = domain.NewError(domain.KindResourceExceeded,
			fmt.Sprintf("memory ceiling of %d MB exceeded", e.limits.MaxMemoryMB))
	case wallExceeded(evalErr, runCtx):
		res.State = domain.StateTimedOut
		res.Err = domain.NewError(domain.KindTimedOut,
			fmt.Sprintf("execution exceeded the %s wall-clock ceiling after %s",
				e.limits.MaxWallTime, res.Elapsed.Round(time.Millisecond)))
	case evalErr != nil:
		res.State = domain.StateFailed
		res.Err = classifyEvalError(evalErr)
	default:
		res.State = domain.StateCompleted
		res.Success = true
		if res.Output == "" {
			res.Output = "Code executed successfully (no output)"
		}
	}

	if res.Err != nil {
		slog.Warn("Execution failed",
			"kind", res.Err.Kind, "elapsed", res.Elapsed, "peakMemoryMB", res.PeakMemoryMB)
	} else {
		slog.Info("Execution completed",
			"elapsed", res.Elapsed, "peakMemoryMB", res.PeakMemoryMB, "outputBytes", len(res.Output))
	}
	return res
}

// resolveData picks the data source: a non-empty inline payload always wins
// over the active projection.
func (e *Engine) resolveData(ctx context.Context, req domain.ExecutionRequest) (*frame.Frame, *domain.Error) {
	if len(req.InlineRows) > 0 {
		fr, err := frame.FromRecords(req.InlineRows)
		if err != nil {
			return nil, domain.NewError(domain.KindInvalidInput, err.Error())
		}
		return fr, nil
	}
	if e.source == nil {
		return nil, domain.NewError(domain.KindDataUnavailable, "no data source configured and no inline payload")
	}
	fr, err := e.source.ActiveProjection(ctx)
	if err != nil {
		return nil, domain.AsError(err)
	}
	return fr, nil
}

func wallExceeded(evalErr error, runCtx context.Context) bool {
	if errors.Is(evalErr, context.DeadlineExceeded) {
		return true
	}
	return runCtx.Err() == context.DeadlineExceeded
}
