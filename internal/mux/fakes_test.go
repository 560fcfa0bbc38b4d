package mux

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pipePort is one end of an in-memory pipe; the test drives the other end.
type pipePort struct {
	net.Conn
	clears atomic.Int32
}

func (p *pipePort) ClearInput() error {
	p.clears.Add(1)
	return nil
}

// device hands out pipe ports and exposes the far ends to the test.
type device struct {
	mu      sync.Mutex
	fail    int
	opens   int
	ports   []*pipePort
	peers   chan net.Conn
	openErr error
}

func newDevice() *device {
	return &device{peers: make(chan net.Conn, 8), openErr: errors.New("no such device")}
}

func (d *device) open() (Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.fail > 0 {
		d.fail--
		return nil, d.openErr
	}
	near, far := net.Pipe()
	p := &pipePort{Conn: near}
	d.ports = append(d.ports, p)
	d.peers <- far
	return p, nil
}

func (d *device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *device) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = n
}

func (d *device) Port(i int) *pipePort {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ports[i]
}

func (d *device) peer(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-d.peers:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("device was not opened")
		return nil
	}
}
