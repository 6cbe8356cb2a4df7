package cli

import (
	"fmt"
	"os"

	"github.com/cybertec-postgresql/covlua/internal/config"
	"github.com/cybertec-postgresql/covlua/internal/coverage"
	"github.com/cybertec-postgresql/covlua/internal/discovery"
	cerrors "github.com/cybertec-postgresql/covlua/internal/errors"
	"github.com/cybertec-postgresql/covlua/internal/report"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// Report runs every test file under searchPath with coverage forced on
// and writes exactly one report, in format, to outputPath ("-" or ""
// for stdout).
//
// Unlike pgcov's report command, there is no coverage file to load
// between invocations: spec.md is explicit that the engine persists
// nothing across runs but the report files themselves. Report is
// therefore Run's single-format, coverage-always-on sibling rather than
// a reader of Run's prior output -- both ultimately call
// Controller.RunFile over the same discovered test set.
func Report(cfg *config.Config, searchPath, format, outputPath string) error {
	runCfg := *cfg
	runCfg.Enabled = true
	if format != "" {
		runCfg.ReportFormat = []luatypes.ReportFormat{luatypes.ReportFormat(format)}
	}
	if len(runCfg.ReportFormat) == 0 {
		return fmt.Errorf("no report format specified")
	}
	want := runCfg.ReportFormat[0]
	if !report.ValidFormat(string(want)) {
		return fmt.Errorf("unsupported format: %s (supported: %v)", want, report.SupportedFormats())
	}

	testFiles, err := discovery.DiscoverTests(searchPath)
	if err != nil {
		return fmt.Errorf("failed to discover tests: %w", err)
	}
	if len(testFiles) == 0 {
		return fmt.Errorf("no test files found under %s", searchPath)
	}

	ctrl := coverage.New(&runCfg, []string{searchPath})
	ctrl.Start()
	for _, tf := range testFiles {
		if err := ctrl.RunFile(tf.Path); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", tf.RelativePath, err)
		}
	}
	ctrl.Stop()

	data, err := ctrl.GetData()
	if err != nil {
		return err
	}

	var writer *os.File
	if outputPath == "" || outputPath == "-" {
		writer = os.Stdout
	} else {
		writer, err = os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer writer.Close()
	}

	if err := report.FormatToWriter(data, ctrl.Store(), want, writer); err != nil {
		return cerrors.NewReportError(string(want), err)
	}

	if outputPath != "-" && outputPath != "" {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", outputPath)
	}
	return nil
}
