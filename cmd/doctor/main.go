package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/vitalstat/vitalstat/internal/capability"
	"github.com/vitalstat/vitalstat/internal/domain"
	"github.com/vitalstat/vitalstat/internal/engine"
)

func main() {
	// 1. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("Starting VitalStat Doctor...")

	// 2. Report capabilities
	eng := engine.New(nil, engine.DefaultLimits())
	reporter := capability.NewReporter(eng.Limits())

	limits := reporter.Limits()
	slog.Info("Execution limits",
		"maxWallTimeSeconds", limits.MaxWallTimeSeconds,
		"maxMemoryMB", limits.MaxMemoryMB,
		"maxOutputBytes", limits.MaxOutputBytes,
		"interpreter", limits.Interpreter,
		"hostMemoryMB", limits.HostMemoryMB,
		"hostCPUCount", limits.HostCPUCount,
	)
	for lib, ok := range reporter.Libraries() {
		slog.Info("Library availability", "library", lib, "available", ok)
	}

	// 3. Manual Verification Test
	// Inline payload keeps the check self-contained: no store required
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	slog.Info("Running verification task...")
	res := eng.Execute(ctx, domain.ExecutionRequest{
		Code: `fmt.Println("mean systolic:", df.Col("systolic").Mean())`,
		InlineRows: []map[string]any{
			{"systolic": 120.0},
			{"systolic": 130.0},
			{"systolic": 125.0},
		},
	})
	if !res.Success {
		slog.Error("Verification failed", "kind", res.Err.Kind, "message", res.Err.Message)
		os.Exit(1)
	}

	// 4. Output Result
	slog.Info("Verification finished successfully")
	slog.Info("SANDBOX OUTPUT", "output", res.Output, "elapsed", res.Elapsed, "peakMemoryMB", res.PeakMemoryMB)
}
