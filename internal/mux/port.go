package mux

import (
	"fmt"
	"io"

	"github.com/pkg/term"

	"github.com/sjoerd104/OpenCentauri/internal/shared/paths"
	"github.com/sjoerd104/OpenCentauri/internal/vtty"
)

// Port is an open serial device.
type Port interface {
	io.ReadWriteCloser
	// ClearInput discards received bytes that were not read yet.
	ClearInput() error
}

// Opener opens a fresh handle to the same device.
type Opener func() (Port, error)

type serialPort struct {
	*term.Term
}

// ClearInput flushes the line. pkg/term flushes both directions.
func (p serialPort) ClearInput() error { return p.Flush() }

// SerialOpener opens a physical serial device in raw mode.
func SerialOpener(device string, baud int) Opener {
	return func() (Port, error) {
		t, err := term.Open(device, term.Speed(baud), term.RawMode)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", device, err)
		}
		return serialPort{t}, nil
	}
}

// VirtualOpener creates a pty linked at the vtty path for name.
func VirtualOpener(name string) Opener {
	return func() (Port, error) {
		return vtty.Open(paths.VTTYLink(name))
	}
}
