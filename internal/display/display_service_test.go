package display

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"sqlite-backup/internal/snapshot"
)

func newTestService(format OutputFormat, unicode bool) (DisplayService, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	ds := NewDisplayService(&DisplayConfig{
		ColorEnabled: false,
		OutputFormat: string(format),
		Writer:       buf,
	})
	ds.GetIconSystem().SetUnicodeSupport(unicode)
	return ds, buf
}

func testSnapshots() []*snapshot.Snapshot {
	newer := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	older := time.Date(2024, 5, 30, 8, 15, 30, 0, time.Local)
	return []*snapshot.Snapshot{
		{
			Path:        "/b/" + snapshot.FileName(newer, snapshot.CompressionTypeGzip),
			Name:        snapshot.FileName(newer, snapshot.CompressionTypeGzip),
			Size:        3 * 1024 * 1024 / 2,
			ModTime:     newer,
			CapturedAt:  newer,
			Compression: snapshot.CompressionTypeGzip,
		},
		{
			Path:        "/b/" + snapshot.FileName(older, snapshot.CompressionTypeNone),
			Name:        snapshot.FileName(older, snapshot.CompressionTypeNone),
			Size:        10 * 1024 * 1024,
			ModTime:     older,
			CapturedAt:  older,
			Compression: snapshot.CompressionTypeNone,
		},
	}
}

func TestStatusLines(t *testing.T) {
	tests := []struct {
		name    string
		unicode bool
		print   func(DisplayService)
		want    string
	}{
		{"success unicode", true, func(d DisplayService) { d.Success("Backup directory: /b") }, "✓ Backup directory: /b\n"},
		{"failure unicode", true, func(d DisplayService) { d.Failure("Database not found at /db") }, "✗ Database not found at /db\n"},
		{"info unicode", true, func(d DisplayService) { d.Info("No backups yet") }, "ℹ No backups yet\n"},
		{"warning unicode", true, func(d DisplayService) { d.Warning("careful") }, "⚠ careful\n"},
		{"success ascii", false, func(d DisplayService) { d.Success("done") }, "[OK] done\n"},
		{"failure ascii", false, func(d DisplayService) { d.Failure("broken") }, "[FAIL] broken\n"},
		{"info ascii", false, func(d DisplayService) { d.Info("note") }, "[INFO] note\n"},
		{"warning ascii", false, func(d DisplayService) { d.Warning("careful") }, "[WARN] careful\n"},
		{"detail", true, func(d DisplayService) { d.Detail("Deleted: db_x.sqlite3") }, "  Deleted: db_x.sqlite3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, buf := newTestService(FormatTable, tt.unicode)
			tt.print(ds)
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuietModeKeepsFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	ds := NewDisplayService(&DisplayConfig{QuietMode: true, ASCIIOnly: true, Writer: buf})

	ds.Success("hidden")
	ds.Info("hidden")
	ds.Detail("hidden")
	ds.Failure("shown")
	ds.Warning("shown too")

	got := buf.String()
	if strings.Contains(got, "hidden") {
		t.Errorf("quiet mode printed suppressed lines: %q", got)
	}
	if got != "[FAIL] shown\n[WARN] shown too\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestPrintSnapshotsTable(t *testing.T) {
	ds, buf := newTestService(FormatTable, true)

	if err := ds.PrintSnapshots("/b", testSnapshots()); err != nil {
		t.Fatalf("PrintSnapshots: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", lines)
	}
	if lines[0] != "Available backups (2 total):" {
		t.Errorf("unexpected header %q", lines[0])
	}

	want := "  db_2024-06-01_120000.sqlite3.gz              1.50 MB  2024-06-01 12:00:00"
	if lines[1] != want {
		t.Errorf("row 1:\n got %q\nwant %q", lines[1], want)
	}
	want = "  db_2024-05-30_081530.sqlite3                10.00 MB  2024-05-30 08:15:30"
	if lines[2] != want {
		t.Errorf("row 2:\n got %q\nwant %q", lines[2], want)
	}
}

func TestPrintSnapshotsEmpty(t *testing.T) {
	ds, buf := newTestService(FormatTable, true)

	if err := ds.PrintSnapshots("/b", nil); err != nil {
		t.Fatalf("PrintSnapshots: %v", err)
	}
	if got := buf.String(); got != "ℹ No backups found\n" {
		t.Errorf("got %q", got)
	}
}

func TestPrintSnapshotsJSON(t *testing.T) {
	ds, buf := newTestService(FormatJSON, true)

	if err := ds.PrintSnapshots("/b", testSnapshots()); err != nil {
		t.Fatalf("PrintSnapshots: %v", err)
	}

	var listing struct {
		Directory string `json:"directory"`
		Total     int    `json:"total"`
		Backups   []struct {
			Name        string `json:"name"`
			Size        int64  `json:"size"`
			Compression string `json:"compression"`
		} `json:"backups"`
	}
	if err := json.Unmarshal(buf.Bytes(), &listing); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if listing.Directory != "/b" || listing.Total != 2 || len(listing.Backups) != 2 {
		t.Fatalf("unexpected listing %+v", listing)
	}
	if listing.Backups[0].Compression != "GZIP" {
		t.Errorf("expected GZIP, got %q", listing.Backups[0].Compression)
	}
}

func TestPrintSnapshotsYAMLEmpty(t *testing.T) {
	ds, buf := newTestService(FormatYAML, true)

	if err := ds.PrintSnapshots("/b", nil); err != nil {
		t.Fatalf("PrintSnapshots: %v", err)
	}

	var listing map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &listing); err != nil {
		t.Fatalf("invalid YAML %q: %v", buf.String(), err)
	}
	if listing["total"] != 0 {
		t.Errorf("expected total 0, got %v", listing["total"])
	}
	if backups, ok := listing["backups"].([]interface{}); !ok || len(backups) != 0 {
		t.Errorf("expected empty backups list, got %#v", listing["backups"])
	}
}

func TestSnapshotTableTruncatesAndColors(t *testing.T) {
	table := NewSnapshotTable(nil, DefaultColorTheme())
	table.SetMaxWidth(20)
	table.AddSnapshot(testSnapshots()[0])

	if got := table.Render(); got != "  db_2024-06-01_1200\n" {
		t.Errorf("got %q", got)
	}

	cs := NewColorSystem(DefaultColorTheme(), &bytes.Buffer{})
	cs.SetColorSupport(true)
	colored := NewSnapshotTable(cs, DefaultColorTheme())
	colored.AddSnapshot(testSnapshots()[0])
	out := colored.Render()
	if !strings.Contains(out, "\x1b[") || !strings.Contains(out, "1.50 MB") {
		t.Errorf("expected ANSI colored row, got %q", out)
	}
}

func TestColorSystemDisabledForBuffers(t *testing.T) {
	cs := NewColorSystem(DefaultColorTheme(), &bytes.Buffer{})
	if cs.IsColorSupported() && !forcedColor() {
		t.Error("buffers must not be treated as color terminals")
	}
	cs.SetColorSupport(false)
	if got := cs.Colorize("plain", ColorRed); got != "plain" {
		t.Errorf("got %q", got)
	}
}

func TestIconFallbacks(t *testing.T) {
	is := NewIconSystem()
	for name, ascii := range map[string]string{
		"success": "[OK]",
		"failure": "[FAIL]",
		"info":    "[INFO]",
		"warning": "[WARN]",
		"missing": "?",
	} {
		is.SetUnicodeSupport(false)
		if got := is.RenderIcon(name); got != ascii {
			t.Errorf("%s: got %q, want %q", name, got, ascii)
		}
	}
}

func TestUnicodeDetection(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want bool
	}{
		{map[string]string{"LANG": "en_US.UTF-8"}, true},
		{map[string]string{"LANG": "C"}, false},
		{map[string]string{"LC_ALL": "POSIX", "LANG": "en_US.UTF-8"}, false},
		{map[string]string{"LANG": "en_US.UTF-8", "NO_UNICODE": "1"}, false},
		{map[string]string{"LANG": "C", "FORCE_UNICODE": "1"}, true},
	}

	for _, tt := range tests {
		for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG", "NO_UNICODE", "FORCE_UNICODE"} {
			t.Setenv(key, "")
		}
		for k, v := range tt.env {
			t.Setenv(k, v)
		}
		if got := detectUnicodeSupport(); got != tt.want {
			t.Errorf("env %v: got %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestDisplayConfigValidate(t *testing.T) {
	cfg := DefaultDisplayConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.OutputFormat = "xml"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "invalid output format") {
		t.Errorf("expected output format error, got %v", err)
	}

	cfg = &DisplayConfig{OutputFormat: "JSON"}
	cfg.SetDefaults()
	if cfg.Format() != FormatJSON || !cfg.Format().IsStructured() {
		t.Errorf("expected normalised json format, got %q", cfg.OutputFormat)
	}
}

func forcedColor() bool {
	return strings.TrimSpace(os.Getenv("FORCE_COLOR")) != ""
}
