package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sjoerd104/OpenCentauri/internal/dsp/layout"
	"github.com/sjoerd104/OpenCentauri/internal/dsp/transport"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/monitoring"
)

const (
	readBufferSize = 4096
	inboxDepth     = 64

	// DefaultMaxPending bounds TTY input queued while the ring is full.
	DefaultMaxPending = 64 * 1024
)

// Link is the ring the bridge drives.
type Link interface {
	Drain() ([]byte, error)
	Send(p []byte) error
	ReadCursor() uint32
	Snapshot() transport.Status
}

// Signals reports notifications from the peer.
type Signals interface {
	HasSignal() (bool, error)
	ReadSignal(localRead uint16) (bool, error)
}

// Config holds loop pacing.
type Config struct {
	PollInterval time.Duration
	MaxPending   int
}

// Status is what the status server reports for a bridge.
type Status struct {
	LinkID    string           `json:"link_id"`
	TTY       string           `json:"tty"`
	Transport transport.Status `json:"transport"`
	PendingTX int              `json:"pending_tx"`
	Dropped   int64            `json:"dropped_tx_bytes"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Bridge copies data between a Link and a TTY.
type Bridge struct {
	link    Link
	signals Signals
	tty     io.ReadWriter
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	inbox   chan []byte
	pending []byte
	dropped int64

	mu     sync.Mutex
	status Status
}

// New creates a bridge. metrics may be nil.
func New(link Link, signals Signals, tty io.ReadWriter, cfg Config, linkID, ttyName string, logger *zap.Logger, metrics *monitoring.Metrics) *Bridge {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	return &Bridge{
		link:    link,
		signals: signals,
		tty:     tty,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		inbox:   make(chan []byte, inboxDepth),
		status:  Status{LinkID: linkID, TTY: ttyName},
	}
}

// Run drives the link until ctx ends. The TTY reader goroutine exits once
// the caller closes the TTY.
func (b *Bridge) Run(ctx context.Context) error {
	go b.readTTY(ctx)

	lim := rate.NewLimiter(rate.Every(b.cfg.PollInterval), 1)
	b.logger.Info("Bridge running", zap.Duration("poll_interval", b.cfg.PollInterval))

	for {
		if err := lim.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		b.Step()
	}
}

// Step runs one round of the loop: receive, collect TTY input, send.
func (b *Bridge) Step() {
	b.receive()
	b.collect()
	b.flush()
	b.publish()
}

func (b *Bridge) readTTY(ctx context.Context) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := b.tty.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case b.inbox <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				b.logger.Debug("TTY reader stopped", zap.Error(err))
				return
			}
			b.logger.Warn("TTY read failed", zap.Error(err))
			select {
			case <-time.After(b.cfg.PollInterval):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bridge) receive() {
	ok, err := b.signals.HasSignal()
	if err != nil {
		b.logger.Warn("Failed to poll msgbox", zap.Error(err))
		b.recordSignal("error")
		return
	}
	if !ok {
		return
	}

	fresh, err := b.signals.ReadSignal(uint16(b.link.ReadCursor()))
	if err != nil {
		b.logger.Warn("Failed to read msgbox signal", zap.Error(err))
		b.recordSignal("error")
		return
	}
	if !fresh {
		b.recordSignal(b.staleOutcome())
		return
	}
	b.recordSignal("data")

	data, err := b.link.Drain()
	if err != nil {
		b.logger.Warn("Failed to drain ring", zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}

	if _, err := b.tty.Write(data); err != nil {
		b.logger.Warn("Failed to write to TTY", zap.Int("bytes", len(data)), zap.Error(err))
	}
}

func (b *Bridge) collect() {
	for {
		select {
		case chunk := <-b.inbox:
			b.pending = append(b.pending, chunk...)
		default:
			if over := len(b.pending) - b.cfg.MaxPending; over > 0 {
				b.logger.Warn("TTY input backlog full, dropping oldest bytes", zap.Int("dropped", over))
				b.pending = append(b.pending[:0], b.pending[over:]...)
				b.dropped += int64(over)
			}
			return
		}
	}
}

func (b *Bridge) flush() {
	for len(b.pending) > 0 {
		n := min(len(b.pending), layout.MaxPayload)

		err := b.link.Send(b.pending[:n])
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrBufferFull), errors.Is(err, transport.ErrCorruptHead):
			b.logger.Debug("Ring busy, keeping chunk queued", zap.Int("bytes", n), zap.Error(err))
			return
		default:
			// Anything else either committed the data already (notify
			// failures) or will never succeed.
			b.logger.Warn("Send failed", zap.Int("bytes", n), zap.Error(err))
		}
		b.pending = b.pending[n:]
	}
	b.pending = nil
}

// staleOutcome tells noise apart from a repeated cursor when the signal
// source exposes the last decoded signal.
func (b *Bridge) staleOutcome() string {
	if ls, ok := b.signals.(interface{ LastSignal() layout.Signal }); ok {
		if !layout.InRange(uint32(ls.LastSignal().Write)) {
			return "garbage"
		}
	}
	return "idle"
}

func (b *Bridge) recordSignal(outcome string) {
	if b.metrics != nil {
		b.metrics.RecordSignal(outcome)
	}
}

func (b *Bridge) publish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Transport = b.link.Snapshot()
	b.status.PendingTX = len(b.pending)
	b.status.Dropped = b.dropped
	b.status.UpdatedAt = time.Now()
}

// Status returns the state published by the last loop round. Safe to call
// from any goroutine.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}
