// Package sharespace opens the DSP debug device and maps the shared control
// page used during the link handshake.
//
// The driver exposes a descriptor listing the physical regions the DSP
// firmware set aside. Selecting a region is a read-modify-write: read the
// descriptor, point MmapPhyAddr at the chosen region, write it back. Every
// later mmap of the device is then backed by that region.
package sharespace

import (
	"errors"
	"fmt"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/sjoerd104/OpenCentauri/internal/dsp/devio"
	"github.com/sjoerd104/OpenCentauri/internal/dsp/layout"
	"github.com/sjoerd104/OpenCentauri/internal/shared/paths"
)

var (
	ErrDeviceOpen = errors.New("control device open failed")
	ErrIoctl      = errors.New("control device ioctl failed")
	ErrMapping    = errors.New("control region mapping failed")
)

// Raw ioctl request codes of the dsp_debug driver.
const (
	ioctlReadDebugMessage  uintptr = 0x01
	ioctlWriteDebugMessage uintptr = 0x03
)

// Selector picks which physical region backs the control mapping.
type Selector int

const (
	SelectDSPWrite Selector = iota
	SelectARMWrite
)

func (s Selector) String() string {
	switch s {
	case SelectDSPWrite:
		return "dsp-write"
	case SelectARMWrite:
		return "arm-write"
	default:
		return "unknown"
	}
}

// DebugMessage is the DSP log bookkeeping nested in Descriptor.
type DebugMessage struct {
	SysCnt      uint32
	LogHeadAddr uint32
	LogEndAddr  uint32
	LogHeadSize uint32
}

// Descriptor mirrors the driver's struct dsp_sharespace.
type Descriptor struct {
	DSPWriteAddr uint32
	DSPWriteSize uint32

	ARMWriteAddr uint32
	ARMWriteSize uint32

	DSPLogAddr uint32
	DSPLogSize uint32

	MmapPhyAddr uint32
	MmapPhySize uint32

	AromReadDSPLogAddr uint32
	DebugMsg           DebugMessage
}

// Config locates the control device.
type Config struct {
	Device string
}

// DefaultConfig returns the stock device path.
func DefaultConfig() Config {
	return Config{Device: paths.DSPDebug}
}

// Region is the mapped control page.
type Region struct {
	file    devio.File
	mapping devio.Mapping
	desc    Descriptor
	sel     Selector
	logger  *zap.Logger
}

// Open opens the control device, selects the region named by sel and maps
// one page of it. Failures are not retried.
func Open(sys devio.Sys, cfg Config, sel Selector, logger *zap.Logger) (*Region, error) {
	f, err := sys.Open(cfg.Device, unix.O_RDWR|unix.O_SYNC|unix.O_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceOpen, cfg.Device, err)
	}

	r := &Region{file: f, sel: sel, logger: logger}
	if err := r.choose(sys); err != nil {
		f.Close()
		return nil, err
	}

	m, err := sys.Map(f, layout.PageSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrMapping, err)
	}
	r.mapping = m

	logger.Info("Mapped control region",
		zap.String("device", cfg.Device),
		zap.Stringer("selector", sel),
		zap.Uint32("phys_addr", r.desc.MmapPhyAddr),
	)
	return r, nil
}

func (r *Region) choose(sys devio.Sys) error {
	if err := sys.Ioctl(r.file, ioctlReadDebugMessage, unsafe.Pointer(&r.desc)); err != nil {
		return fmt.Errorf("%w: read descriptor: %v", ErrIoctl, err)
	}

	r.logger.Debug("Control descriptor before select",
		zap.Uint32("dsp_write_addr", r.desc.DSPWriteAddr),
		zap.Uint32("dsp_write_size", r.desc.DSPWriteSize),
		zap.Uint32("arm_write_addr", r.desc.ARMWriteAddr),
		zap.Uint32("arm_write_size", r.desc.ARMWriteSize),
		zap.Uint32("dsp_log_addr", r.desc.DSPLogAddr),
		zap.Uint32("mmap_phy_addr", r.desc.MmapPhyAddr),
	)

	switch r.sel {
	case SelectDSPWrite:
		r.desc.MmapPhyAddr = r.desc.DSPWriteAddr
	case SelectARMWrite:
		r.desc.MmapPhyAddr = r.desc.ARMWriteAddr
	default:
		return fmt.Errorf("%w: unknown selector %d", ErrIoctl, r.sel)
	}

	if err := sys.Ioctl(r.file, ioctlWriteDebugMessage, unsafe.Pointer(&r.desc)); err != nil {
		return fmt.Errorf("%w: write descriptor: %v", ErrIoctl, err)
	}
	return nil
}

// Bytes returns the mapped control page.
func (r *Region) Bytes() []byte {
	return r.mapping.Bytes()
}

// Invalidate drops any cached view of part of the control page.
func (r *Region) Invalidate(off, n int) error {
	return r.mapping.Invalidate(off, n)
}

// Descriptor returns the descriptor as committed to the driver.
func (r *Region) Descriptor() Descriptor {
	return r.desc
}

// Close unmaps the page and closes the device. Errors are logged.
func (r *Region) Close() {
	if r.mapping != nil {
		if err := r.mapping.Unmap(); err != nil {
			r.logger.Warn("Failed to unmap control region", zap.Error(err))
		}
		r.mapping = nil
	}
	if err := r.file.Close(); err != nil {
		r.logger.Warn("Failed to close control device", zap.Error(err))
	}
}
