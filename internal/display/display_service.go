package display

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"sqlite-backup/internal/snapshot"
)

// SnapshotListing is the structured form of the backup listing
type SnapshotListing struct {
	Directory string               `json:"directory" yaml:"directory"`
	Total     int                  `json:"total" yaml:"total"`
	Backups   []*snapshot.Snapshot `json:"backups" yaml:"backups"`
}

// displayService implements the DisplayService interface
type displayService struct {
	config      *DisplayConfig
	colorSystem ColorSystem
	iconSystem  IconSystem
	writer      io.Writer
}

// NewDisplayService creates a new display service with the given configuration
func NewDisplayService(config *DisplayConfig) DisplayService {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	config.SetDefaults()

	ds := &displayService{
		config:     config,
		iconSystem: NewIconSystem(),
	}
	ds.SetOutput(config.Writer)
	if config.ASCIIOnly {
		ds.iconSystem.SetUnicodeSupport(false)
	}
	return ds
}

func (ds *displayService) Success(message string) {
	if ds.config.QuietMode {
		return
	}
	ds.printStatusMessage("success", message)
}

func (ds *displayService) Failure(message string) {
	ds.printStatusMessage("failure", message)
}

func (ds *displayService) Info(message string) {
	if ds.config.QuietMode {
		return
	}
	ds.printStatusMessage("info", message)
}

func (ds *displayService) Warning(message string) {
	ds.printStatusMessage("warning", message)
}

func (ds *displayService) Detail(message string) {
	if ds.config.QuietMode {
		return
	}
	fmt.Fprintf(ds.writer, "  %s\n", message)
}

// PrintSnapshots prints the listing header and one row per snapshot, or
// the listing document when a structured format is configured.
func (ds *displayService) PrintSnapshots(dir string, snaps []*snapshot.Snapshot) error {
	if snaps == nil {
		snaps = []*snapshot.Snapshot{}
	}

	if ds.config.Format().IsStructured() {
		return ds.PrintStructured(SnapshotListing{Directory: dir, Total: len(snaps), Backups: snaps})
	}

	if len(snaps) == 0 {
		ds.printStatusMessage("info", "No backups found")
		return nil
	}

	fmt.Fprintf(ds.writer, "Available backups (%d total):\n", len(snaps))

	table := NewSnapshotTable(ds.colorSystem, ds.config.GetColorTheme())
	table.SetMaxWidth(terminalWidth(ds.writer))
	for _, s := range snaps {
		table.AddSnapshot(s)
	}
	table.RenderTo(ds.writer)
	return nil
}

func (ds *displayService) PrintStructured(v interface{}) error {
	switch ds.config.Format() {
	case FormatJSON:
		return ds.printJSON(v)
	default:
		return ds.printYAML(v)
	}
}

func (ds *displayService) RenderIcon(name string) string {
	return ds.iconSystem.RenderIcon(name)
}

func (ds *displayService) GetIconSystem() IconSystem {
	return ds.iconSystem
}

// SetOutput changes the output writer and re-detects color support for it
func (ds *displayService) SetOutput(writer io.Writer) {
	if writer == nil {
		writer = os.Stdout
	}
	ds.writer = writer
	ds.config.Writer = writer
	ds.colorSystem = NewColorSystem(ds.config.GetColorTheme(), writer)
	if !ds.config.ColorEnabled {
		ds.colorSystem.SetColorSupport(false)
	}
}

func (ds *displayService) GetConfig() *DisplayConfig {
	return ds.config
}

// Helper methods

func (ds *displayService) printStatusMessage(icon, message string) {
	prefix := ds.iconSystem.RenderIconWithColor(icon, ds.colorSystem)
	fmt.Fprintf(ds.writer, "%s %s\n", prefix, message)
}

func (ds *displayService) printJSON(content interface{}) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON: %w", err)
	}
	_, err = fmt.Fprintln(ds.writer, string(data))
	return err
}

func (ds *displayService) printYAML(content interface{}) error {
	enc := yaml.NewEncoder(ds.writer)
	enc.SetIndent(2)
	if err := enc.Encode(content); err != nil {
		return fmt.Errorf("failed to format YAML: %w", err)
	}
	return enc.Close()
}
