package mux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/monitoring"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/resilience"
)

// DefaultRetryInterval is the pause between reopen attempts.
const DefaultRetryInterval = 100 * time.Millisecond

// ErrManagerClosed is returned once Close has been called.
var ErrManagerClosed = errors.New("mux: port manager closed")

// PortManager owns one device and hands the current handle to the
// goroutines sharing it. Each handle carries a generation; a goroutine that
// hits an error asks for a reopen with the generation it was using, so a
// device that already got replaced is not reopened twice.
type PortManager struct {
	name    string
	open    Opener
	breaker *resilience.Breaker
	retry   time.Duration
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	port   Port
	closed bool

	gen atomic.Uint64
}

// ManagerOption configures a PortManager.
type ManagerOption func(*PortManager)

// WithRetryInterval sets the pause between reopen attempts.
func WithRetryInterval(d time.Duration) ManagerOption {
	return func(m *PortManager) { m.retry = d }
}

// WithMetrics counts reopens.
func WithMetrics(metrics *monitoring.Metrics) ManagerOption {
	return func(m *PortManager) { m.metrics = metrics }
}

// NewPortManager opens the device once. A failure here is returned; later
// failures are retried by Reopen.
func NewPortManager(name string, open Opener, logger *zap.Logger, opts ...ManagerOption) (*PortManager, error) {
	m := &PortManager{
		name:   name,
		open:   open,
		retry:  DefaultRetryInterval,
		logger: logger.With(zap.String("port", name)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.breaker = resilience.New(name, resilience.Settings{
		Timeout: m.retry * 10,
		OnStateChange: func(name string, from, to resilience.State) {
			m.logger.Info("Reopen breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	p, err := open()
	if err != nil {
		return nil, fmt.Errorf("open port %s: %w", name, err)
	}
	m.port = p
	m.gen.Store(1)
	return m, nil
}

// Name returns the port name.
func (m *PortManager) Name() string { return m.name }

// Acquire returns the current handle and its generation.
func (m *PortManager) Acquire() (Port, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, 0, ErrManagerClosed
	}
	return m.port, m.gen.Load(), nil
}

// Reopen replaces the handle of generation failed and returns the new one.
// If another caller already replaced it, the current handle is returned
// straight away. Attempts repeat until one succeeds or ctx ends.
func (m *PortManager) Reopen(ctx context.Context, failed uint64) (Port, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, 0, ErrManagerClosed
	}
	if gen := m.gen.Load(); gen != failed {
		return m.port, gen, nil
	}

	if m.port != nil {
		if err := m.port.Close(); err != nil {
			m.logger.Debug("Failed to close dead port", zap.Error(err))
		}
		m.port = nil
	}

	m.logger.Warn("Reopening port")
	attempt := 0
	p, err := resilience.Retry(ctx, m.breaker, m.retry, func() (Port, error) {
		attempt++
		p, err := m.open()
		if err != nil {
			m.logger.Warn("Failed to reopen port", zap.Int("attempt", attempt), zap.Error(err))
		}
		return p, err
	})
	if err != nil {
		return nil, 0, err
	}

	m.port = p
	gen := m.gen.Add(1)
	if m.metrics != nil {
		m.metrics.IncMuxReconnects(m.name)
	}
	m.logger.Info("Port reopened", zap.Int("attempts", attempt), zap.Uint64("generation", gen))
	return m.port, gen, nil
}

// Close closes the current handle. Later Acquire and Reopen calls fail.
func (m *PortManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.port == nil {
		return nil
	}
	return m.port.Close()
}

// Breaker reports the reopen gate state and its consecutive failure count.
func (m *PortManager) Breaker() (resilience.State, uint32) {
	return m.breaker.State(), m.breaker.Counts().ConsecutiveFailures
}

// Generation returns how many handles the manager has opened. It does not
// wait for a reopen in progress.
func (m *PortManager) Generation() uint64 {
	return m.gen.Load()
}
