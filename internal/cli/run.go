// Package cli wires the coverage engine into the covlua executable's
// run/report subcommands, mirroring internal/cli/run.go's
// discover -> execute -> collect -> summarize pipeline shape, retargeted
// from a PostgreSQL test runner to a Lua one: test file discovery
// replaces *_test.sql discovery, Controller.RunFile replaces the
// database-backed Executor, and there is no connection pool to dial
// since every test file runs against a pooled *lua.LState instead.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cybertec-postgresql/covlua/internal/aggregate"
	"github.com/cybertec-postgresql/covlua/internal/config"
	"github.com/cybertec-postgresql/covlua/internal/coverage"
	"github.com/cybertec-postgresql/covlua/internal/discovery"
	cerrors "github.com/cybertec-postgresql/covlua/internal/errors"
	"github.com/cybertec-postgresql/covlua/internal/report"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// Run discovers every test file under searchPath, executes each one
// (under coverage tracking when cfg.Enabled), writes the configured
// report formats, and returns a process exit code.
func Run(cfg *config.Config, searchPath string) (int, error) {
	startTime := time.Now()

	if cfg.Verbose {
		fmt.Printf("covlua: discovering tests in %s\n", searchPath)
	}

	testFiles, err := discovery.DiscoverTests(searchPath)
	if err != nil {
		return 1, fmt.Errorf("failed to discover tests: %w", err)
	}
	if len(testFiles) == 0 {
		fmt.Println("No test files found (*_test.lua or *_spec.lua)")
		return 0, nil
	}
	if cfg.Verbose {
		fmt.Printf("Found %d test file(s)\n", len(testFiles))
	}

	ctrl := coverage.New(cfg, []string{searchPath})
	if cfg.Enabled {
		ctrl.Start()
	}

	failed := 0
	for _, tf := range testFiles {
		if cfg.Verbose {
			fmt.Printf("running %s\n", tf.RelativePath)
		}
		if err := ctrl.RunFile(tf.Path); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", tf.RelativePath, err)
		}
	}

	if cfg.Enabled {
		ctrl.Stop()
		if err := writeReports(ctrl, cfg); err != nil {
			return 1, err
		}
	}

	fmt.Printf("\n")
	fmt.Printf("Tests: %d run, %d failed\n", len(testFiles), failed)
	fmt.Printf("Time:  %v\n", time.Since(startTime).Round(time.Millisecond))
	if cfg.Enabled {
		fmt.Printf("Coverage reports written to %s\n", cfg.ReportDir)
	}

	if failed > 0 {
		return 1, nil
	}
	return 0, nil
}

// writeReports generates every format in cfg.ReportFormat. Per spec's
// ReportError contract, one format failing doesn't stop the rest from
// being attempted; the first error is returned after all have run.
func writeReports(ctrl *coverage.Controller, cfg *config.Config) error {
	data, err := ctrl.GetData()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ReportDir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	var firstErr error
	for _, format := range cfg.ReportFormat {
		outPath := filepath.Join(cfg.ReportDir, "coverage."+string(format))
		if err := writeOneReport(data, ctrl.Store(), format, outPath); err != nil {
			fmt.Fprintf(os.Stderr, "report %s: %v\n", format, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Printf("  %s: %s\n", format, outPath)
	}
	return firstErr
}

func writeOneReport(data aggregate.GlobalSummary, s *store.Store, format luatypes.ReportFormat, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return cerrors.NewReportError(string(format), err)
	}
	defer f.Close()
	if err := report.FormatToWriter(data, s, format, f); err != nil {
		return cerrors.NewReportError(string(format), err)
	}
	return nil
}

// PrintVerbose prints a message only when cfg.Verbose is set.
func PrintVerbose(cfg *config.Config, format string, args ...interface{}) {
	if cfg.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}
