package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"

	"sqlite-backup/internal/snapshot"
)

const (
	nameColumnWidth = 40
	timeLayout      = "2006-01-02 15:04:05"
)

// SnapshotTable renders the human-readable backup listing: name padded to
// 40 columns, size in MB right-aligned to 8, then modification time.
type SnapshotTable struct {
	colorSystem ColorSystem
	theme       ColorTheme
	maxWidth    int
	rows        []string
}

// NewSnapshotTable creates a table. A nil colorSystem renders plain text.
func NewSnapshotTable(colorSystem ColorSystem, theme ColorTheme) *SnapshotTable {
	return &SnapshotTable{colorSystem: colorSystem, theme: theme}
}

// SetMaxWidth truncates rows wider than width. Zero disables truncation.
func (t *SnapshotTable) SetMaxWidth(width int) {
	t.maxWidth = width
}

// AddSnapshot appends one row
func (t *SnapshotTable) AddSnapshot(s *snapshot.Snapshot) {
	t.rows = append(t.rows, FormatSnapshotRow(s))
}

// Render returns all rows, one per line
func (t *SnapshotTable) Render() string {
	var b strings.Builder
	for _, row := range t.rows {
		row = truncate(row, t.maxWidth)
		if t.colorSystem != nil && t.colorSystem.IsColorSupported() {
			row = t.colorize(row)
		}
		b.WriteString(row)
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderTo writes the table to writer
func (t *SnapshotTable) RenderTo(writer io.Writer) {
	fmt.Fprint(writer, t.Render())
}

// colorize highlights the name column of a formatted row
func (t *SnapshotTable) colorize(row string) string {
	const indent = 2
	if len(row) <= indent {
		return row
	}
	rest := row[indent:]
	end := strings.IndexByte(rest, ' ')
	if end < 0 {
		return row[:indent] + t.colorSystem.Colorize(rest, t.theme.Primary)
	}
	return row[:indent] + t.colorSystem.Colorize(rest[:end], t.theme.Primary) + rest[end:]
}

// FormatSnapshotRow formats one listing line without color
func FormatSnapshotRow(s *snapshot.Snapshot) string {
	return fmt.Sprintf("  %-*s %8.2f MB  %s", nameColumnWidth, s.Name, s.SizeMB(), s.ModTime.Format(timeLayout))
}

func truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width])
}

// terminalWidth returns the column count of w when it is a terminal, else 0
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
