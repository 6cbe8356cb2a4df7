package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cybertec-postgresql/covlua/internal/cli"
	"github.com/cybertec-postgresql/covlua/internal/config"
	urfavecli "github.com/urfave/cli/v3"
)

const version = "1.0.0"

func main() {
	app := &urfavecli.Command{
		Name:    "covlua",
		Usage:   "Lua test runner and instrumentation-based coverage tool",
		Version: version,
		Commands: []*urfavecli.Command{
			{
				Name:   "run",
				Usage:  "Run Lua test files and optionally collect coverage",
				Action: runCommand,
				Flags: []urfavecli.Flag{
					&urfavecli.BoolFlag{
						Name:  "coverage",
						Usage: "Enable coverage tracking and report generation",
					},
					&urfavecli.StringSliceFlag{
						Name:  "include",
						Usage: "Glob(s) of files eligible for instrumentation",
					},
					&urfavecli.StringSliceFlag{
						Name:  "exclude",
						Usage: "Glob(s) of files never instrumented",
					},
					&urfavecli.StringFlag{
						Name:  "report-dir",
						Usage: "Coverage report output directory",
					},
					&urfavecli.StringFlag{
						Name:  "report-title",
						Usage: "HTML report title",
					},
					&urfavecli.StringSliceFlag{
						Name:  "report-format",
						Usage: "Report format(s): html, json, lcov, cobertura",
					},
					&urfavecli.BoolFlag{
						Name:  "verbose",
						Usage: "Enable debug output",
					},
				},
			},
			{
				Name:   "report",
				Usage:  "Run tests and emit a single coverage report",
				Action: reportCommand,
				Flags: []urfavecli.Flag{
					&urfavecli.StringFlag{
						Name:  "format",
						Usage: "Output format (json, lcov, html, or cobertura)",
						Value: "json",
					},
					&urfavecli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (use - for stdout)",
						Value:   "-",
					},
					&urfavecli.StringSliceFlag{
						Name:  "include",
						Usage: "Glob(s) of files eligible for instrumentation",
					},
					&urfavecli.StringSliceFlag{
						Name:  "exclude",
						Usage: "Glob(s) of files never instrumented",
					},
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runCommand handles the 'covlua run' command.
func runCommand(ctx context.Context, cmd *urfavecli.Command) error {
	cfg := config.Load()

	enabled := cmd.Bool("coverage")
	include := cmd.StringSlice("include")
	exclude := cmd.StringSlice("exclude")
	reportDir := cmd.String("report-dir")
	reportTitle := cmd.String("report-title")
	formats := cmd.StringSlice("report-format")
	verbose := cmd.Bool("verbose")

	config.ApplyFlags(cfg, &enabled, include, exclude, reportDir, reportTitle, formats, verbose)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	searchPath := cmd.Args().First()
	if searchPath == "" {
		searchPath = "."
	}

	exitCode, err := cli.Run(cfg, searchPath)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// reportCommand handles the 'covlua report' command.
func reportCommand(ctx context.Context, cmd *urfavecli.Command) error {
	cfg := config.Load()

	if include := cmd.StringSlice("include"); len(include) > 0 {
		cfg.Include = include
	}
	if exclude := cmd.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Exclude = exclude
	}

	format := cmd.String("format")
	output := cmd.String("output")

	searchPath := cmd.Args().First()
	if searchPath == "" {
		searchPath = "."
	}

	return cli.Report(cfg, searchPath, format, output)
}
