package devio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

var (
	// ErrInvalidState is returned when an ioctl reports a negative status.
	ErrInvalidState = errors.New("device reported invalid state")
)

// File is an open device node.
type File interface {
	io.ReadWriteCloser
	Fd() uintptr
	Name() string
}

// Mapping is a shared memory mapping of a device.
type Mapping interface {
	Bytes() []byte
	// Invalidate drops any cached view of [off, off+n) so the next load
	// observes writes made by the other side of the mapping.
	Invalidate(off, n int) error
	Unmap() error
}

// Sys opens, controls and maps devices.
type Sys interface {
	Open(path string, flag int) (File, error)
	Ioctl(f File, req uintptr, arg unsafe.Pointer) error
	Map(f File, length int) (Mapping, error)
	// Poll waits up to timeout for f to become readable. A zero timeout
	// returns immediately.
	Poll(f File, timeout time.Duration) (bool, error)
}

// Host is the Sys implementation backed by the running kernel.
type Host struct{}

// NewHost returns the kernel-backed Sys.
func NewHost() Host {
	return Host{}
}

// Open opens path with the given unix open flags.
func (Host) Open(path string, flag int) (File, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Ioctl issues req on f with arg as the third argument.
func (Host) Ioctl(f File, req uintptr, arg unsafe.Pointer) error {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return fmt.Errorf("ioctl %#x on %s: %w", req, f.Name(), errno)
	}
	if int32(r) < 0 {
		return fmt.Errorf("ioctl %#x on %s returned %d: %w", req, f.Name(), int32(r), ErrInvalidState)
	}
	return nil
}

// Map maps the first length bytes of f shared and read-write.
func (Host) Map(f File, length int) (Mapping, error) {
	osf, ok := f.(*os.File)
	if !ok {
		return nil, fmt.Errorf("map %s: not an os file", f.Name())
	}
	m, err := mmap.MapRegion(osf, length, mmap.RDWR, 0, 0)
	if err != nil {
		return nil, err
	}
	return &hostMapping{m: m}, nil
}

// Poll reports whether f has data ready to read.
func (Host) Poll(f File, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll %s: %w", f.Name(), err)
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}

type hostMapping struct {
	m mmap.MMap
}

func (h *hostMapping) Bytes() []byte {
	return h.m
}

func (h *hostMapping) Invalidate(off, n int) error {
	if off < 0 || n < 0 || off+n > len(h.m) {
		return fmt.Errorf("invalidate [%d,%d) outside mapping of %d bytes", off, off+n, len(h.m))
	}
	return unix.Msync(h.m[off:off+n], unix.MS_INVALIDATE)
}

func (h *hostMapping) Unmap() error {
	return h.m.Unmap()
}

// CString returns the bytes of b up to the first nul.
func CString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// SetCString copies s into the fixed-size field b, nul padding the rest.
// s is truncated so that at least one trailing nul remains.
func SetCString(b []byte, s string) {
	for i := range b {
		b[i] = 0
	}
	if len(s) >= len(b) {
		s = s[:len(b)-1]
	}
	copy(b, s)
}

// IOW encodes a write-direction ioctl request number the way the Linux
// _IOW macro does.
func IOW(typ, nr, size uintptr) uintptr {
	const (
		nrShift   = 0
		typeShift = 8
		sizeShift = 16
		dirShift  = 30
		dirWrite  = 1
	)
	return dirWrite<<dirShift | size<<sizeShift | typ<<typeShift | nr<<nrShift
}
