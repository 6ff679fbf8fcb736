package display

import (
	"os"
	"strings"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

// IconSystem handles icon rendering with fallbacks
type IconSystem interface {
	GetIcon(name string) Icon
	RenderIcon(name string) string
	RenderIconWithColor(name string, colorSystem ColorSystem) string
	IsUnicodeSupported() bool
	SetUnicodeSupport(enabled bool)
}

type iconSystem struct {
	unicodeSupported bool
	icons            map[string]Icon
}

// NewIconSystem creates a new icon system with Unicode detection
func NewIconSystem() IconSystem {
	return &iconSystem{
		unicodeSupported: detectUnicodeSupport(),
		icons: map[string]Icon{
			"success": {Unicode: "✓", ASCII: "[OK]", Color: ColorGreen},
			"failure": {Unicode: "✗", ASCII: "[FAIL]", Color: ColorRed},
			"info":    {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorCyan},
			"warning": {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
		},
	}
}

// detectUnicodeSupport checks whether the locale can print the status markers.
// Unlike colors, markers are kept when output is piped.
func detectUnicodeSupport() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}

	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		if value == "C" || value == "POSIX" {
			return false
		}
		upper := strings.ToUpper(value)
		return strings.Contains(upper, "UTF-8") || strings.Contains(upper, "UTF8")
	}

	term := os.Getenv("TERM")
	return term != "dumb" && term != "vt100"
}

// GetIcon returns the icon for the given name
func (is *iconSystem) GetIcon(name string) Icon {
	if icon, exists := is.icons[name]; exists {
		return icon
	}
	return Icon{Unicode: "?", ASCII: "?", Color: ColorWhite}
}

// RenderIcon returns the appropriate icon representation (Unicode or ASCII)
func (is *iconSystem) RenderIcon(name string) string {
	icon := is.GetIcon(name)
	if is.unicodeSupported {
		return icon.Unicode
	}
	return icon.ASCII
}

// RenderIconWithColor returns the icon with color applied
func (is *iconSystem) RenderIconWithColor(name string, colorSystem ColorSystem) string {
	text := is.RenderIcon(name)
	if colorSystem != nil && colorSystem.IsColorSupported() {
		return colorSystem.Colorize(text, is.GetIcon(name).Color)
	}
	return text
}

func (is *iconSystem) IsUnicodeSupported() bool {
	return is.unicodeSupported
}

// SetUnicodeSupport manually sets Unicode support (for testing or configuration)
func (is *iconSystem) SetUnicodeSupport(enabled bool) {
	is.unicodeSupported = enabled
}
