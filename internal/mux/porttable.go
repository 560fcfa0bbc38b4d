package mux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/sjoerd104/OpenCentauri/internal/shared/paths"
)

// ErrNoPorts is returned for a port table without entries.
var ErrNoPorts = errors.New("mux: no serial ports in port table")

// PortEntry describes one side port.
type PortEntry struct {
	Name       string `toml:"-" yaml:"-"`
	ID         uint8  `toml:"id" yaml:"id"`
	DevicePath string `toml:"device_path" yaml:"device_path"`
	BaudRate   int    `toml:"baud_rate" yaml:"baud_rate"`
}

// PortTable maps port names to entries.
type PortTable map[string]PortEntry

// LoadPortTable reads a port table, picking the format from the file
// extension. Anything other than .yaml or .yml is parsed as TOML.
func LoadPortTable(path string) (PortTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read port table: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseTOML(data)
	}
}

// ParseTOML parses a TOML port table.
func ParseTOML(data []byte) (PortTable, error) {
	var t PortTable
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse TOML port table: %w", err)
	}
	return t.named(), nil
}

// ParseYAML parses a YAML port table.
func ParseYAML(data []byte) (PortTable, error) {
	var t PortTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse YAML port table: %w", err)
	}
	return t.named(), nil
}

func (t PortTable) named() PortTable {
	for name, e := range t {
		e.Name = name
		t[name] = e
	}
	return t
}

// Validate checks names and ids. With physical set, every entry also needs a
// device path and a baud rate.
func (t PortTable) Validate(physical bool) error {
	if len(t) == 0 {
		return ErrNoPorts
	}

	seen := make(map[uint8]string, len(t))
	for _, e := range t.Entries() {
		if err := paths.ValidateEntryName(e.Name); err != nil {
			return fmt.Errorf("port %q: %w", e.Name, err)
		}
		if other, dup := seen[e.ID]; dup {
			return fmt.Errorf("ports %q and %q share id %d", other, e.Name, e.ID)
		}
		seen[e.ID] = e.Name

		if physical {
			if e.DevicePath == "" {
				return fmt.Errorf("port %q: device_path is required", e.Name)
			}
			if e.BaudRate <= 0 {
				return fmt.Errorf("port %q: baud_rate must be positive", e.Name)
			}
		}
	}
	return nil
}

// Entries returns the entries ordered by id.
func (t PortTable) Entries() []PortEntry {
	out := make([]PortEntry, 0, len(t))
	for name, e := range t {
		e.Name = name
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}
