package display

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// DisplayConfig controls how status lines and listings are rendered
type DisplayConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled" yaml:"color_enabled"`
	Theme        string `mapstructure:"theme" yaml:"theme"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`

	// ASCIIOnly forces the [OK]/[FAIL] markers regardless of locale
	ASCIIOnly bool `mapstructure:"ascii_only" yaml:"ascii_only"`

	// QuietMode suppresses success and info lines; failures still print
	QuietMode bool `mapstructure:"quiet" yaml:"quiet"`

	Writer io.Writer `mapstructure:"-" yaml:"-"`
}

// ThemeName represents available color themes
type ThemeName string

const (
	ThemeDefault      ThemeName = "default"
	ThemeHighContrast ThemeName = "high-contrast"
)

// DefaultDisplayConfig returns a default display configuration
func DefaultDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		ColorEnabled: true,
		Theme:        string(ThemeDefault),
		OutputFormat: string(FormatTable),
		Writer:       os.Stdout,
	}
}

var (
	themeNames    = []string{string(ThemeDefault), string(ThemeHighContrast)}
	outputFormats = []string{string(FormatTable), string(FormatJSON), string(FormatYAML)}
)

// Validate rejects unknown themes and output formats
func (dc *DisplayConfig) Validate() error {
	var problems []string
	if !slices.Contains(themeNames, dc.Theme) {
		problems = append(problems, fmt.Sprintf("invalid theme %q, must be one of: %s", dc.Theme, strings.Join(themeNames, ", ")))
	}
	if !slices.Contains(outputFormats, dc.OutputFormat) {
		problems = append(problems, fmt.Sprintf("invalid output format %q, must be one of: %s", dc.OutputFormat, strings.Join(outputFormats, ", ")))
	}
	if len(problems) > 0 {
		return fmt.Errorf("display configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SetDefaults sets default values for unspecified configuration options
func (dc *DisplayConfig) SetDefaults() {
	if dc.Theme == "" {
		dc.Theme = string(ThemeDefault)
	}
	if dc.OutputFormat == "" {
		dc.OutputFormat = string(FormatTable)
	}
	dc.OutputFormat = strings.ToLower(dc.OutputFormat)
	if dc.Writer == nil {
		dc.Writer = os.Stdout
	}
}

// GetColorTheme returns the ColorTheme based on the theme name
func (dc *DisplayConfig) GetColorTheme() ColorTheme {
	return GetThemeByName(dc.Theme)
}

// Format returns the configured output format
func (dc *DisplayConfig) Format() OutputFormat {
	return OutputFormat(dc.OutputFormat)
}
