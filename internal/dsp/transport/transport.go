package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sjoerd104/OpenCentauri/internal/dsp/layout"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/monitoring"
)

var (
	ErrPayloadSize = errors.New("payload size out of range")
	ErrBufferFull  = errors.New("ring buffer full")
	ErrNotReady    = errors.New("transport not ready")
	ErrCorruptHead = errors.New("remote head out of range")
	ErrWindowSize  = errors.New("mapping too small")
)

// DefaultBackoff is the pause between peer-ready polls.
const DefaultBackoff = 10 * time.Millisecond

// Memory is a mapped region whose cached view can be dropped.
type Memory interface {
	Bytes() []byte
	Invalidate(off, n int) error
}

// Notifier tells the peer that new data was written.
type Notifier interface {
	SendSignal(read, write uint16) error
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records ring activity into m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithBackoff sets the pause between peer-ready polls.
func WithBackoff(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.backoff = d
		}
	}
}

// Status is a point-in-time view of a Transport.
type Status struct {
	State  State       `json:"state"`
	Local  layout.Head `json:"local"`
	Remote layout.Head `json:"remote"`
}

// Transport is the ARM side of the shared ring.
type Transport struct {
	window   []byte
	windowM  Memory
	control  Memory
	bufferPA uint32
	notifier Notifier

	logger  *zap.Logger
	metrics *monitoring.Metrics
	backoff time.Duration

	state  State
	local  layout.Head
	remote layout.Head
}

// New takes ownership of window and control and publishes a fresh local
// head. bufferPA is the physical address the window was allocated at.
func New(window, control Memory, bufferPA uint32, n Notifier, opts ...Option) (*Transport, error) {
	wb := window.Bytes()
	if len(wb) < layout.WindowSize {
		return nil, fmt.Errorf("%w: window is %d bytes, need %d", ErrWindowSize, len(wb), layout.WindowSize)
	}
	if cb := control.Bytes(); len(cb) < layout.PageSize {
		return nil, fmt.Errorf("%w: control region is %d bytes, need %d", ErrWindowSize, len(cb), layout.PageSize)
	}

	t := &Transport{
		window:   wb[:layout.WindowSize],
		windowM:  window,
		control:  control,
		bufferPA: bufferPA,
		notifier: n,
		logger:   zap.NewNop(),
		backoff:  DefaultBackoff,
		state:    StateUninitialized,
		local:    layout.NewHead(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.persist()
	t.setState(StateUninitialized)
	return t, nil
}

func (t *Transport) localPage() []byte  { return t.window[:layout.PageSize] }
func (t *Transport) remotePage() []byte { return t.window[layout.PageSize:layout.WindowSize] }

func (t *Transport) persist() {
	t.local.Encode(t.localPage()[layout.HeadOffset:])
}

// refresh drops the cached remote page and re-reads its head.
func (t *Transport) refresh() error {
	if err := t.windowM.Invalidate(layout.PageSize, layout.PageSize); err != nil {
		return fmt.Errorf("invalidate remote page: %w", err)
	}
	t.remote = layout.DecodeHead(t.remotePage()[layout.HeadOffset:])
	return nil
}

func (t *Transport) setState(s State) {
	t.state = s
	if t.metrics != nil {
		t.metrics.SetLinkState(int(s))
	}
}

// NegotiateControl flips the control region's init flag and points its
// cursors at the buffer so the peer can find it.
func (t *Transport) NegotiateControl() {
	ctrl := t.control.Bytes()[layout.HeadOffset:]
	head := layout.DecodeHead(ctrl)
	prev := head.InitState

	if head.InitState == layout.InitPeer || head.InitState == layout.InitAcked {
		head.InitState = layout.InitAcked
	} else {
		head.InitState = layout.InitPeer
	}
	head.Read = t.bufferPA + layout.PageSize
	head.Write = t.bufferPA
	head.Encode(ctrl)

	t.logger.Info("Negotiated control region",
		zap.Uint32("previous_init", prev),
		zap.Stringer("head", head))
	t.setState(StateHandshaking)
}

// WaitPeerReady polls the remote head until the peer reports ready or ctx
// ends. The local head is reset and republished on every poll so the peer
// can see this side is alive. A transport that is already ready returns
// at once with its cursors untouched.
func (t *Transport) WaitPeerReady(ctx context.Context) error {
	switch t.state {
	case StateUninitialized:
		return fmt.Errorf("%w: control region not negotiated", ErrNotReady)
	case StateReady:
		return nil
	}

	start := time.Now()
	t.local = layout.NewHead()

	lim := rate.NewLimiter(rate.Every(t.backoff), 1)
	lim.Allow()

	for polls := 1; ; polls++ {
		if err := t.refresh(); err != nil {
			return err
		}
		t.persist()

		if t.remote.InitState == layout.InitPeer {
			elapsed := time.Since(start)
			if t.metrics != nil {
				t.metrics.ObserveHandshake(elapsed)
			}
			t.logger.Info("Peer ready",
				zap.Int("polls", polls),
				zap.Duration("elapsed", elapsed),
				zap.Stringer("remote", t.remote))
			t.setState(StateReady)
			return nil
		}

		if err := lim.Wait(ctx); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				err = cerr
			}
			return fmt.Errorf("wait for peer: %w", err)
		}
	}
}

// Drain returns every byte the peer has written since the last drain and
// publishes the advanced read cursor. An empty result means nothing new.
func (t *Transport) Drain() ([]byte, error) {
	if t.state != StateReady {
		return nil, ErrNotReady
	}
	if err := t.refresh(); err != nil {
		return nil, err
	}
	if !layout.InRange(t.remote.Write) {
		return nil, fmt.Errorf("%w: write cursor %d", ErrCorruptHead, t.remote.Write)
	}

	r, w := t.local.Read, t.remote.Write
	if r == w {
		return nil, nil
	}

	size := layout.Used(r, w)
	page := t.remotePage()
	out := make([]byte, size)
	if int(r)+size <= layout.MaxAddr {
		copy(out, page[r:int(r)+size])
	} else {
		head := layout.MaxAddr - int(r)
		copy(out, page[r:layout.MaxAddr])
		copy(out[head:], page[layout.MinAddr:layout.MinAddr+size-head])
	}

	t.local.Read = layout.Advance(r, size)
	t.persist()

	if t.metrics != nil {
		t.metrics.RecordDrain(size)
		t.metrics.SetRingFill(monitoring.DirRX, size)
	}
	return out, nil
}

// Send copies p into the local page, publishes the new write cursor and
// signals the peer. p must hold 1 to layout.MaxPayload bytes. A send that
// would leave no free byte fails with ErrBufferFull and writes nothing.
// A notification failure is returned after the data is committed.
func (t *Transport) Send(p []byte) error {
	n := len(p)
	if n == 0 || n > layout.MaxPayload {
		t.reject("payload_size")
		return fmt.Errorf("%w: %d bytes, want 1..%d", ErrPayloadSize, n, layout.MaxPayload)
	}
	if t.state != StateReady {
		t.reject("not_ready")
		return ErrNotReady
	}
	if err := t.refresh(); err != nil {
		return err
	}
	if !layout.InRange(t.remote.Read) {
		t.reject("corrupt_head")
		return fmt.Errorf("%w: read cursor %d", ErrCorruptHead, t.remote.Read)
	}

	w := t.local.Write
	free := layout.Free(t.remote.Read, w)
	if free <= n {
		t.reject("buffer_full")
		return fmt.Errorf("%w: %d bytes free, need more than %d", ErrBufferFull, free, n)
	}

	page := t.localPage()
	if int(w)+n <= layout.MaxAddr {
		copy(page[w:], p)
	} else {
		head := layout.MaxAddr - int(w)
		copy(page[w:layout.MaxAddr], p[:head])
		copy(page[layout.MinAddr:], p[head:])
	}

	t.local.Write = layout.Advance(w, n)
	t.local.InitState = layout.InitPeer
	t.persist()

	if t.metrics != nil {
		t.metrics.RecordSend(n)
		t.metrics.SetRingFill(monitoring.DirTX, layout.Used(t.remote.Read, t.local.Write))
	}

	if err := t.notifier.SendSignal(uint16(t.local.Read), uint16(t.local.Write)); err != nil {
		return fmt.Errorf("notify peer: %w", err)
	}
	return nil
}

func (t *Transport) reject(reason string) {
	if t.metrics != nil {
		t.metrics.RecordSendRejected(reason)
	}
}

// State returns the handshake state.
func (t *Transport) State() State {
	return t.state
}

// ReadCursor returns the local read cursor, the value a notification is
// compared against.
func (t *Transport) ReadCursor() uint32 {
	return t.local.Read
}

// Snapshot returns the state and the last known heads.
func (t *Transport) Snapshot() Status {
	return Status{State: t.state, Local: t.local, Remote: t.remote}
}
