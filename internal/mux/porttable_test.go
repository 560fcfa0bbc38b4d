package mux

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlTable = `
[printer]
id = 1
device_path = "/dev/ttyUSB0"
baud_rate = 115200

[camera]
id = 2
device_path = "/dev/ttyUSB1"
baud_rate = 9600
`

const yamlTable = `
printer:
  id: 1
  device_path: /dev/ttyUSB0
  baud_rate: 115200
camera:
  id: 2
  device_path: /dev/ttyUSB1
  baud_rate: 9600
`

func TestParseFormatsAgree(t *testing.T) {
	fromTOML, err := ParseTOML([]byte(tomlTable))
	require.NoError(t, err)
	fromYAML, err := ParseYAML([]byte(yamlTable))
	require.NoError(t, err)

	assert.Equal(t, fromTOML, fromYAML)
	assert.Equal(t, PortEntry{Name: "printer", ID: 1, DevicePath: "/dev/ttyUSB0", BaudRate: 115200}, fromTOML["printer"])
}

func TestLoadPortTableByExtension(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "ports.toml")
	yamlPath := filepath.Join(dir, "ports.yml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(tomlTable), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlTable), 0o644))

	a, err := LoadPortTable(tomlPath)
	require.NoError(t, err)
	b, err := LoadPortTable(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = LoadPortTable(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseTOMLRejectsBadID(t *testing.T) {
	_, err := ParseTOML([]byte("[a]\nid = 300\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		table    PortTable
		physical bool
		wantErr  string
	}{
		{"empty", PortTable{}, false, "no serial ports"},
		{"virtual needs no device", PortTable{"a": {ID: 1}}, false, ""},
		{"real needs device", PortTable{"a": {ID: 1, BaudRate: 9600}}, true, "device_path"},
		{"real needs baud", PortTable{"a": {ID: 1, DevicePath: "/dev/ttyS1"}}, true, "baud_rate"},
		{"duplicate id", PortTable{"a": {ID: 1}, "b": {ID: 1}}, false, "share id 1"},
		{"bad name", PortTable{"a/b": {ID: 1}}, false, "single path element"},
		{"real ok", PortTable{"a": {ID: 1, DevicePath: "/dev/ttyS1", BaudRate: 9600}}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate(tt.physical)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEntriesOrderedByID(t *testing.T) {
	table := PortTable{"z": {ID: 1}, "a": {ID: 5}, "m": {ID: 3}}
	entries := table.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"z", "m", "a"}, []string{entries[0].Name, entries[1].Name, entries[2].Name})
}
