package msgbox

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"unsafe"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/sjoerd104/OpenCentauri/internal/dsp/devio"
	"github.com/sjoerd104/OpenCentauri/internal/dsp/layout"
	"github.com/sjoerd104/OpenCentauri/internal/shared/paths"
)

var (
	ErrDeviceOpen       = errors.New("rpmsg device open failed")
	ErrCreateEndpoint   = errors.New("rpmsg endpoint creation failed")
	ErrEndpointNotFound = errors.New("rpmsg endpoint not found")
)

// NameSize is the fixed length of the rpmsg endpoint name field.
const NameSize = 32

// endpointInfo mirrors struct rpmsg_endpoint_info.
type endpointInfo struct {
	Name [NameSize]byte
	Src  uint32
	Dst  uint32
}

var ioctlCreateEndpoint = devio.IOW(0xb5, 0x1, unsafe.Sizeof(endpointInfo{}))

// Config names the endpoint and where to look for it.
type Config struct {
	CtrlDevice string
	ClassDir   string
	DevDir     string
	Name       string
	Src        uint32
	Dst        uint32
}

// DefaultConfig returns the endpoint the DSP firmware listens on.
func DefaultConfig() Config {
	return Config{
		CtrlDevice: paths.RpmsgCtrl,
		ClassDir:   paths.RpmsgClassDir,
		DevDir:     paths.DevDir,
		Name:       "msgbox_demo",
		Src:        0x3,
		Dst:        0xffffffff,
	}
}

// Endpoint is an open notification endpoint.
type Endpoint struct {
	sys    devio.Sys
	ctrl   devio.File
	ept    devio.File
	logger *zap.Logger

	last layout.Signal
}

// Open creates the endpoint and opens its device.
func Open(sys devio.Sys, cfg Config, logger *zap.Logger) (*Endpoint, error) {
	if len(cfg.Name) >= NameSize {
		return nil, fmt.Errorf("%w: name %q longer than %d bytes", ErrCreateEndpoint, cfg.Name, NameSize-1)
	}

	ctrl, err := sys.Open(cfg.CtrlDevice, unix.O_RDWR)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceOpen, cfg.CtrlDevice, err)
	}

	info := endpointInfo{Src: cfg.Src, Dst: cfg.Dst}
	devio.SetCString(info.Name[:], cfg.Name)
	if err := sys.Ioctl(ctrl, ioctlCreateEndpoint, unsafe.Pointer(&info)); err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("%w: %v", ErrCreateEndpoint, err)
	}

	entry, err := FindEndpoint(os.DirFS(cfg.ClassDir), cfg.Name)
	if err != nil {
		ctrl.Close()
		return nil, err
	}

	devPath := paths.Device(cfg.DevDir, entry)
	ept, err := sys.Open(devPath, unix.O_RDWR)
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceOpen, devPath, err)
	}

	logger.Info("Opened msgbox endpoint", zap.String("name", cfg.Name), zap.String("device", devPath))

	return &Endpoint{sys: sys, ctrl: ctrl, ept: ept, logger: logger}, nil
}

// FindEndpoint scans the rpmsg class directory once for the entry whose
// name attribute matches name, ignoring trailing nuls and whitespace.
func FindEndpoint(class fs.FS, name string) (string, error) {
	matches, err := doublestar.Glob(class, paths.RpmsgPrefix+"*/name")
	if err != nil {
		return "", fmt.Errorf("%w: scan: %v", ErrEndpointNotFound, err)
	}

	for _, m := range matches {
		raw, err := fs.ReadFile(class, m)
		if err != nil {
			continue
		}
		if strings.TrimRight(string(raw), "\x00\r\n\t ") == name {
			return path.Dir(m), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrEndpointNotFound, name)
}

// SendSignal notifies the peer with the given cursor snapshot.
func (e *Endpoint) SendSignal(read, write uint16) error {
	b := layout.Signal{Read: read, Write: write}.Encode()
	n, err := e.ept.Write(b[:])
	if err != nil {
		return fmt.Errorf("send signal: %w", err)
	}
	e.logger.Debug("Sent msgbox signal", zap.Int("bytes", n), zap.Uint16("read", read), zap.Uint16("write", write))
	return nil
}

// HasSignal reports, without blocking, whether a signal is pending.
func (e *Endpoint) HasSignal() (bool, error) {
	return e.sys.Poll(e.ept, 0)
}

// ReadSignal blocks for one signal and reports whether it announces data
// past localRead. Signals whose write cursor falls outside the payload
// range are treated as noise.
func (e *Endpoint) ReadSignal(localRead uint16) (bool, error) {
	var buf [layout.SignalSize]byte
	n, err := e.ept.Read(buf[:])
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		return false, fmt.Errorf("read signal: %w", err)
	}
	if n != layout.SignalSize {
		e.logger.Warn("Short msgbox read", zap.Int("bytes", n))
	}

	e.last = layout.DecodeSignal(buf[:n])
	e.logger.Debug("Msgbox signal", zap.Uint16("read", e.last.Read), zap.Uint16("write", e.last.Write))

	if !layout.InRange(uint32(e.last.Write)) {
		return false, nil
	}
	if e.last.Write == localRead {
		return false, nil
	}
	return true, nil
}

// LastSignal returns the cursors carried by the most recent signal.
func (e *Endpoint) LastSignal() layout.Signal {
	return e.last
}

// Close closes the endpoint and control devices.
func (e *Endpoint) Close() {
	if err := e.ept.Close(); err != nil {
		e.logger.Warn("Failed to close msgbox endpoint", zap.Error(err))
	}
	if err := e.ctrl.Close(); err != nil {
		e.logger.Warn("Failed to close rpmsg control device", zap.Error(err))
	}
}
