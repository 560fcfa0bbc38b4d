// Package vtty creates pseudo-terminals published under a stable symlink, so
// host software can open a fixed path such as /tmp/vtty/dsp regardless of
// which /dev/pts node the kernel handed out.
package vtty

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/creack/pty"
	"github.com/pkg/term"
	"github.com/pkg/term/termios"
)

// Port is the master side of a pty whose slave is linked at Link.
type Port struct {
	master *os.File
	slave  *os.File
	raw    *term.Term
	link   string

	closeOnce sync.Once
	closeErr  error
}

// Open allocates a pty, puts its slave in raw mode and points link at it.
// An existing file at link is replaced.
func Open(link string) (*Port, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open pty: %w", err)
	}

	// Held open for the port's lifetime so the line settings stick and the
	// master does not see EIO while no client is attached.
	raw, err := term.Open(slave.Name(), term.RawMode)
	if err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("failed to set raw mode on %s: %w", slave.Name(), err)
	}

	p := &Port{master: master, slave: slave, raw: raw, link: link}
	if err := p.relink(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Port) relink() error {
	if err := os.MkdirAll(filepath.Dir(p.link), 0o755); err != nil {
		return fmt.Errorf("failed to create link dir: %w", err)
	}
	if err := os.Remove(p.link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale link %s: %w", p.link, err)
	}
	if err := os.Symlink(p.slave.Name(), p.link); err != nil {
		return fmt.Errorf("failed to link %s: %w", p.link, err)
	}
	return nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.master.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.master.Write(b) }

// ClearInput discards bytes the client wrote that were not read yet.
func (p *Port) ClearInput() error {
	rc, err := p.master.SyscallConn()
	if err != nil {
		return err
	}
	var flushErr error
	if err := rc.Control(func(fd uintptr) {
		flushErr = termios.Tcflush(fd, termios.TCIFLUSH)
	}); err != nil {
		return err
	}
	return flushErr
}

// Name returns the slave device path.
func (p *Port) Name() string { return p.slave.Name() }

// Link returns the symlink path.
func (p *Port) Link() string { return p.link }

// Close removes the link and releases both sides of the pty.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		if target, err := os.Readlink(p.link); err == nil && target == p.slave.Name() {
			os.Remove(p.link)
		}
		p.closeErr = errors.Join(p.raw.Close(), p.slave.Close(), p.master.Close())
	})
	return p.closeErr
}
