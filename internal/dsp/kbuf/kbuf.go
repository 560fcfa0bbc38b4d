package kbuf

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/sjoerd104/OpenCentauri/internal/dsp/devio"
	"github.com/sjoerd104/OpenCentauri/internal/dsp/layout"
	"github.com/sjoerd104/OpenCentauri/internal/shared/paths"
)

var (
	ErrDeviceOpen     = errors.New("kbuf manager open failed")
	ErrAllocation     = errors.New("kbuf allocation failed")
	ErrPathResolution = errors.New("kbuf map device open failed")
	ErrMapping        = errors.New("kbuf mapping failed")
)

// Raw ioctl request codes of the kbuf manager.
const (
	ioctlCreateBuf  uintptr = 0x100
	ioctlDestroyBuf uintptr = 0x200
)

// Buffer types understood by the manager.
const (
	TypeCached    uint32 = 0
	TypeNonCached uint32 = 1
)

// NameSize is the fixed length of the driver's name field.
const NameSize = 32

// Descriptor mirrors the driver's struct kbuf_buf_data.
type Descriptor struct {
	Name  [NameSize]byte
	Len   uint32
	Type  uint32
	Minor int32
	VA    uint32
	PA    uint32
}

// BufferName returns the name with trailing nuls removed.
func (d *Descriptor) BufferName() string {
	return devio.CString(d.Name[:])
}

// Config describes the buffer to request.
type Config struct {
	ManagerDevice string
	DevDir        string
	Name          string
	Length        uint32
	Type          uint32
}

// DefaultConfig returns the layout the DSP firmware expects: four
// non-cached pages, of which the first two form the ring window.
func DefaultConfig() Config {
	return Config{
		ManagerDevice: paths.KbufManager,
		DevDir:        paths.DevDir,
		Name:          "dsp-ring",
		Length:        4 * layout.PageSize,
		Type:          TypeNonCached,
	}
}

// Allocator requests buffers from the kbuf manager.
type Allocator struct {
	sys    devio.Sys
	cfg    Config
	logger *zap.Logger
}

// NewAllocator creates an allocator.
func NewAllocator(sys devio.Sys, cfg Config, logger *zap.Logger) *Allocator {
	return &Allocator{sys: sys, cfg: cfg, logger: logger}
}

// Allocate registers a buffer at physical address pa and maps it.
func (a *Allocator) Allocate(pa uint32) (*Buffer, error) {
	if a.cfg.Length < layout.WindowSize {
		return nil, fmt.Errorf("%w: length %d smaller than ring window", ErrAllocation, a.cfg.Length)
	}

	var desc Descriptor
	devio.SetCString(desc.Name[:], a.cfg.Name)
	desc.Len = a.cfg.Length
	desc.Type = a.cfg.Type
	desc.PA = pa

	mgr, err := a.sys.Open(a.cfg.ManagerDevice, unix.O_RDWR)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceOpen, a.cfg.ManagerDevice, err)
	}

	a.logger.Debug("Creating kbuf",
		zap.String("name", a.cfg.Name),
		zap.Uint32("len", desc.Len),
		zap.Uint32("type", desc.Type),
		zap.Uint32("pa", desc.PA),
	)

	if err := a.sys.Ioctl(mgr, ioctlCreateBuf, unsafe.Pointer(&desc)); err != nil {
		mgr.Close()
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	b := &Buffer{sys: a.sys, desc: desc, mgr: mgr, logger: a.logger}

	mapPath := paths.KbufMapDevice(a.cfg.DevDir, desc.Minor, desc.BufferName())
	a.logger.Info("Mapping kbuf device", zap.String("path", mapPath), zap.Int32("minor", desc.Minor))

	mapFile, err := a.sys.Open(mapPath, unix.O_RDWR)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrPathResolution, mapPath, err)
	}
	b.mapFile = mapFile

	m, err := a.sys.Map(mapFile, int(desc.Len))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: %v", ErrMapping, err)
	}
	b.mapping = m

	return b, nil
}

// Buffer is a registered, mapped kbuf.
type Buffer struct {
	sys     devio.Sys
	desc    Descriptor
	mgr     devio.File
	mapFile devio.File
	mapping devio.Mapping
	logger  *zap.Logger

	closeOnce sync.Once
}

// Descriptor returns the descriptor populated by the manager.
func (b *Buffer) Descriptor() Descriptor {
	return b.desc
}

// PhysAddr returns the buffer's physical address.
func (b *Buffer) PhysAddr() uint32 {
	return b.desc.PA
}

// Bytes returns the whole mapping.
func (b *Buffer) Bytes() []byte {
	return b.mapping.Bytes()
}

// Window returns the local page followed by the remote page.
func (b *Buffer) Window() []byte {
	return b.mapping.Bytes()[:layout.WindowSize]
}

// Invalidate drops any cached view of [off, off+n) of the mapping.
func (b *Buffer) Invalidate(off, n int) error {
	return b.mapping.Invalidate(off, n)
}

// Close destroys the kernel registration, then unmaps and closes the
// devices. It is safe to call more than once; only the first call acts.
func (b *Buffer) Close() {
	b.closeOnce.Do(b.release)
}

func (b *Buffer) release() {
	b.logger.Info("Releasing kbuf", zap.String("name", b.desc.BufferName()), zap.Int32("minor", b.desc.Minor))

	if err := b.sys.Ioctl(b.mgr, ioctlDestroyBuf, unsafe.Pointer(&b.desc)); err != nil {
		b.logger.Warn("Failed to destroy kbuf", zap.Error(err))
	}
	if b.mapping != nil {
		if err := b.mapping.Unmap(); err != nil {
			b.logger.Warn("Failed to unmap kbuf", zap.Error(err))
		}
	}
	if b.mapFile != nil {
		if err := b.mapFile.Close(); err != nil {
			b.logger.Warn("Failed to close kbuf map device", zap.Error(err))
		}
	}
	if err := b.mgr.Close(); err != nil {
		b.logger.Warn("Failed to close kbuf manager", zap.Error(err))
	}
}
