// Package devtest provides in-memory stand-ins for devio devices.
package devtest

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
	"unsafe"

	"github.com/stretchr/testify/mock"

	"github.com/sjoerd104/OpenCentauri/internal/dsp/devio"
)

// ErrClosed is returned by File operations after Close.
var ErrClosed = errors.New("devtest: file closed")

// File is a device node backed by byte buffers.
type File struct {
	name string
	fd   uintptr

	mu       sync.Mutex
	in       bytes.Buffer
	out      bytes.Buffer
	closed   bool
	writeErr error
}

// NewFile creates a file reporting the given name and descriptor.
func NewFile(name string, fd uintptr) *File {
	return &File{name: name, fd: fd}
}

// Feed queues b to be returned by later reads.
func (f *File) Feed(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in.Write(b)
}

// FailWrites makes every later write return err.
func (f *File) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// Written returns everything written so far.
func (f *File) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.out.Bytes()...)
}

// Closed reports whether Close was called.
func (f *File) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	if f.in.Len() == 0 {
		return 0, io.EOF
	}
	return f.in.Read(p)
}

func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.out.Write(p)
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *File) Fd() uintptr  { return f.fd }
func (f *File) Name() string { return f.name }

// Mapping is a heap-backed devio.Mapping.
type Mapping struct {
	buf []byte

	mu            sync.Mutex
	invalidations int
	unmapped      bool
	unmapErr      error
}

// NewMapping allocates a zeroed mapping of n bytes.
func NewMapping(n int) *Mapping {
	return &Mapping{buf: make([]byte, n)}
}

// FailUnmap makes Unmap return err.
func (m *Mapping) FailUnmap(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmapErr = err
}

func (m *Mapping) Bytes() []byte { return m.buf }

func (m *Mapping) Invalidate(off, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || n < 0 || off+n > len(m.buf) {
		return errors.New("devtest: invalidate out of range")
	}
	m.invalidations++
	return nil
}

func (m *Mapping) Unmap() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmapped = true
	return m.unmapErr
}

// Invalidations reports how many times Invalidate succeeded.
func (m *Mapping) Invalidations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidations
}

// Unmapped reports whether Unmap was called.
func (m *Mapping) Unmapped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unmapped
}

// Sys is a testify mock of devio.Sys.
type Sys struct {
	mock.Mock
}

// NewSys returns an empty mock; tests register expectations with On.
func NewSys() *Sys {
	return &Sys{}
}

func (s *Sys) Open(path string, flag int) (devio.File, error) {
	args := s.Called(path, flag)
	f, _ := args.Get(0).(devio.File)
	return f, args.Error(1)
}

func (s *Sys) Ioctl(f devio.File, req uintptr, arg unsafe.Pointer) error {
	return s.Called(f, req, arg).Error(0)
}

func (s *Sys) Map(f devio.File, length int) (devio.Mapping, error) {
	args := s.Called(f, length)
	m, _ := args.Get(0).(devio.Mapping)
	return m, args.Error(1)
}

func (s *Sys) Poll(f devio.File, timeout time.Duration) (bool, error) {
	args := s.Called(f, timeout)
	return args.Bool(0), args.Error(1)
}
