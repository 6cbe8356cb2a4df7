// Package config layers the coverage engine's configuration from defaults,
// environment variables, and CLI flags, the same priority order
// internal/cli/config.go used for pgcov's PG* connection settings.
package config

import (
	"os"
	"strings"

	cerrors "github.com/cybertec-postgresql/covlua/internal/errors"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// Config is the shared configuration type; re-exported here so callers
// only need to import this package, not pkg/luatypes directly.
type Config = luatypes.Config

// DefaultConfig mirrors spec.md §6's configuration table defaults.
var DefaultConfig = Config{
	Enabled: false,
	Include: []string{"**/*.lua"},
	Exclude: []string{
		"**/covlua/**",
		"**/vendor/**",
	},
	ReportDir:    "./coverage-reports",
	ReportFormat: []luatypes.ReportFormat{luatypes.FormatHTML},
	ReportTitle:  "Coverage Report",
	Colors: luatypes.ReportColors{
		Covered:    "#4caf50",
		Executed:   "#ffc107",
		NotCovered: "#f44336",
	},
}

// Load builds a Config by layering environment variables over
// DefaultConfig. Priority above this (explicit CLI flags) is applied by
// ApplyFlags once flags are parsed.
func Load() *Config {
	cfg := DefaultConfig
	cfg.Include = append([]string(nil), DefaultConfig.Include...)
	cfg.Exclude = append([]string(nil), DefaultConfig.Exclude...)
	cfg.ReportFormat = append([]luatypes.ReportFormat(nil), DefaultConfig.ReportFormat...)

	if v := os.Getenv("COVLUA_ENABLED"); v != "" {
		cfg.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("COVLUA_REPORT_DIR"); v != "" {
		cfg.ReportDir = v
	}
	if v := os.Getenv("COVLUA_REPORT_TITLE"); v != "" {
		cfg.ReportTitle = v
	}
	if v := os.Getenv("COVLUA_INCLUDE"); v != "" {
		cfg.Include = splitCSV(v)
	}
	if v := os.Getenv("COVLUA_EXCLUDE"); v != "" {
		cfg.Exclude = splitCSV(v)
	}
	if v := os.Getenv("COVLUA_REPORT_FORMAT"); v != "" {
		cfg.ReportFormat = parseFormats(splitCSV(v))
	}
	return &cfg
}

// ApplyFlags layers CLI flag values over cfg, the highest-priority source.
// Zero-value arguments (empty string/slice) leave the existing value
// untouched, matching ApplyFlagsToConfig's "only override what was set"
// contract.
func ApplyFlags(cfg *Config, enabled *bool, include, exclude []string, reportDir, reportTitle string, formats []string, verbose bool) {
	if enabled != nil {
		cfg.Enabled = *enabled
	}
	if len(include) > 0 {
		cfg.Include = include
	}
	if len(exclude) > 0 {
		cfg.Exclude = exclude
	}
	if reportDir != "" {
		cfg.ReportDir = reportDir
	}
	if reportTitle != "" {
		cfg.ReportTitle = reportTitle
	}
	if len(formats) > 0 {
		cfg.ReportFormat = parseFormats(formats)
	}
	cfg.Verbose = verbose
}

// Validate checks the configuration is internally consistent, returning a
// ConfigurationError describing the first problem found.
func Validate(cfg *Config) error {
	if cfg.ReportDir == "" {
		return cerrors.NewConfigurationError("coverage.report.dir", cfg.ReportDir, "output directory must not be empty")
	}
	if len(cfg.Include) == 0 {
		return cerrors.NewConfigurationError("coverage.include", "", "at least one include glob is required")
	}
	for _, f := range cfg.ReportFormat {
		switch f {
		case luatypes.FormatHTML, luatypes.FormatJSON, luatypes.FormatLCOV, luatypes.FormatCobertura:
		default:
			return cerrors.NewConfigurationError("coverage.report.format", string(f), "unsupported report format")
		}
	}
	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFormats(vals []string) []luatypes.ReportFormat {
	out := make([]luatypes.ReportFormat, 0, len(vals))
	for _, v := range vals {
		out = append(out, luatypes.ReportFormat(strings.ToLower(strings.TrimSpace(v))))
	}
	return out
}
