package display

import (
	"io"

	"sqlite-backup/internal/snapshot"
)

// DisplayService prints the status lines and listings the CLI shows to users
type DisplayService interface {
	// Status lines
	Success(message string)
	Failure(message string)
	Info(message string)
	Warning(message string)

	// Detail prints an indented line under the previous status line
	Detail(message string)

	// PrintSnapshots renders the backup listing in the configured format
	PrintSnapshots(dir string, snaps []*snapshot.Snapshot) error
	// PrintStructured writes v as JSON or YAML; table format falls back to YAML
	PrintStructured(v interface{}) error

	// Icon rendering
	RenderIcon(name string) string
	GetIconSystem() IconSystem

	// Configuration
	SetOutput(writer io.Writer)
	GetConfig() *DisplayConfig
}

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// IsStructured reports whether the format is machine-readable.
func (f OutputFormat) IsStructured() bool {
	return f == FormatJSON || f == FormatYAML
}

// Color represents terminal color options
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightCyan
)

// ColorTheme defines color scheme for different message types
type ColorTheme struct {
	Primary Color
	Success Color
	Warning Color
	Error   Color
	Info    Color
	Muted   Color
}

// DefaultColorTheme returns a default color theme
func DefaultColorTheme() ColorTheme {
	return ColorTheme{
		Primary: ColorBlue,
		Success: ColorGreen,
		Warning: ColorYellow,
		Error:   ColorRed,
		Info:    ColorCyan,
		Muted:   ColorWhite,
	}
}
