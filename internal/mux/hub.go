package mux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/monitoring"
)

const (
	// DefaultResyncWait is the pause between the two input flushes of a resync.
	DefaultResyncWait = time.Second

	busDepth      = 256
	sideDepth     = 64
	shutdownGrace = 2 * time.Second
)

// Side is a port multiplexed over the line.
type Side struct {
	Entry   PortEntry
	Manager *PortManager
}

// HubConfig tunes the hub.
type HubConfig struct {
	ResyncWait time.Duration
}

// PortStatus reports one managed device.
type PortStatus struct {
	Name       string `json:"name"`
	ID         *uint8 `json:"id,omitempty"`
	Generation uint64 `json:"generation"`
	Breaker    string `json:"breaker"`
	Failures   uint32 `json:"consecutive_failures"`
}

func portStatus(m *PortManager) PortStatus {
	state, failures := m.Breaker()
	return PortStatus{
		Name:       m.Name(),
		Generation: m.Generation(),
		Breaker:    state.String(),
		Failures:   failures,
	}
}

// HubStatus is what the status server reports for a hub.
type HubStatus struct {
	MuxID string       `json:"mux_id"`
	Line  PortStatus   `json:"line"`
	Sides []PortStatus `json:"sides"`
}

type side struct {
	entry PortEntry
	mgr   *PortManager
	out   chan []byte
}

// Hub moves frames between the multiplexed line and the side ports.
type Hub struct {
	id      string
	line    *PortManager
	sides   map[uint8]*side
	order   []*side
	bus     chan Frame
	cfg     HubConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHub wires the line to the sides. metrics may be nil.
func NewHub(id string, line *PortManager, sides []Side, cfg HubConfig, logger *zap.Logger, metrics *monitoring.Metrics) (*Hub, error) {
	if len(sides) == 0 {
		return nil, ErrNoPorts
	}
	if cfg.ResyncWait <= 0 {
		cfg.ResyncWait = DefaultResyncWait
	}

	h := &Hub{
		id:      id,
		line:    line,
		sides:   make(map[uint8]*side, len(sides)),
		bus:     make(chan Frame, busDepth),
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
	for _, s := range sides {
		if _, dup := h.sides[s.Entry.ID]; dup {
			return nil, fmt.Errorf("duplicate port id %d", s.Entry.ID)
		}
		sp := &side{entry: s.Entry, mgr: s.Manager, out: make(chan []byte, sideDepth)}
		h.sides[s.Entry.ID] = sp
		h.order = append(h.order, sp)
	}
	return h, nil
}

// Run serves until ctx ends, then closes every device.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	spawn := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	for _, s := range h.order {
		spawn(s.receive(h))
		spawn(s.send(h))
	}
	spawn(h.sendLine)
	spawn(h.receiveLine)

	h.logger.Info("Multiplexer running", zap.Int("ports", len(h.order)))
	<-ctx.Done()

	h.closeAll()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		h.logger.Warn("Some port goroutines are still blocked in device I/O")
	}
	return nil
}

// Status reports the managed devices.
func (h *Hub) Status() HubStatus {
	st := HubStatus{
		MuxID: h.id,
		Line:  portStatus(h.line),
	}
	for _, s := range h.order {
		id := s.entry.ID
		ps := portStatus(s.mgr)
		ps.Name = s.entry.Name
		ps.ID = &id
		st.Sides = append(st.Sides, ps)
	}
	return st
}

func (h *Hub) closeAll() {
	if err := h.line.Close(); err != nil {
		h.logger.Warn("Failed to close multiplexed port", zap.Error(err))
	}
	for _, s := range h.order {
		if err := s.mgr.Close(); err != nil {
			h.logger.Warn("Failed to close port", zap.String("port", s.entry.Name), zap.Error(err))
		}
	}
}

// receive reads the side port and queues its bytes for the line.
func (s *side) receive(h *Hub) func(context.Context) {
	return func(ctx context.Context) {
		log := h.logger.With(zap.String("port", s.entry.Name))
		port, gen, err := s.mgr.Acquire()
		if err != nil {
			return
		}

		buf := make([]byte, MaxPayload)
		for {
			n, err := port.Read(buf)
			if n > 0 {
				select {
				case h.bus <- Frame{ID: s.entry.ID, Data: append([]byte(nil), buf[:n]...)}:
				case <-ctx.Done():
					return
				}
			}
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn("Read from port failed, reconnecting", zap.Error(err))
			if port, gen, err = s.mgr.Reopen(ctx, gen); err != nil {
				return
			}
		}
	}
}

// send writes blocks routed from the line, retrying each block until the
// device takes it.
func (s *side) send(h *Hub) func(context.Context) {
	return func(ctx context.Context) {
		log := h.logger.With(zap.String("port", s.entry.Name))
		port, gen, err := s.mgr.Acquire()
		if err != nil {
			return
		}

		for {
			var block []byte
			select {
			case block = <-s.out:
			case <-ctx.Done():
				return
			}

			for {
				err := writeAll(port, block)
				if err == nil {
					break
				}
				if ctx.Err() != nil {
					return
				}
				log.Warn("Write to port failed, reconnecting", zap.Error(err))
				if port, gen, err = s.mgr.Reopen(ctx, gen); err != nil {
					return
				}
			}
		}
	}
}

// sendLine frames bus blocks onto the line. After a write failure the
// queued blocks are dropped while the line comes back.
func (h *Hub) sendLine(ctx context.Context) {
	port, gen, err := h.line.Acquire()
	if err != nil {
		return
	}

	for {
		var f Frame
		select {
		case f = <-h.bus:
		case <-ctx.Done():
			return
		}

		buf, err := f.Encode()
		if err != nil {
			h.logger.Warn("Dropping unencodable block", zap.Uint8("id", f.ID), zap.Error(err))
			continue
		}

		if err := writeAll(port, buf); err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Error("Write to multiplexed port failed, dropping queued blocks", zap.Error(err))
			if port, gen, err = h.line.Reopen(ctx, gen); err != nil {
				return
			}
			dropped := h.drainBus()
			h.logger.Warn("Multiplexed port back", zap.Int("dropped_blocks", dropped+1))
			continue
		}
		h.recordFrame(f.ID, monitoring.DirTX)
	}
}

func (h *Hub) drainBus() int {
	n := 0
	for {
		select {
		case <-h.bus:
			n++
		default:
			return n
		}
	}
}

// receiveLine routes frames from the line to the side ports.
func (h *Hub) receiveLine(ctx context.Context) {
	port, gen, err := h.line.Acquire()
	if err != nil {
		return
	}

	for {
		f, err := ReadFrame(port)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrDesync) {
				if port, gen, err = h.resync(ctx, port, gen, err.Error()); err != nil {
					return
				}
				continue
			}
			h.logger.Error("Read from multiplexed port failed, reconnecting", zap.Error(err))
			if port, gen, err = h.line.Reopen(ctx, gen); err != nil {
				return
			}
			continue
		}

		s, ok := h.sides[f.ID]
		if !ok {
			reason := fmt.Sprintf("no port with id %d", f.ID)
			if port, gen, err = h.resync(ctx, port, gen, reason); err != nil {
				return
			}
			continue
		}

		h.recordFrame(f.ID, monitoring.DirRX)
		select {
		case s.out <- f.Data:
		case <-ctx.Done():
			return
		}
	}
}

// resync flushes the line input twice with a pause in between. A failed
// flush reopens the line.
func (h *Hub) resync(ctx context.Context, port Port, gen uint64, reason string) (Port, uint64, error) {
	h.logger.Warn("Multiplexed stream out of sync, flushing input",
		zap.String("reason", reason),
		zap.Duration("wait", h.cfg.ResyncWait))
	if h.metrics != nil {
		h.metrics.IncMuxDesyncs()
	}

	err := port.ClearInput()
	if err == nil {
		select {
		case <-time.After(h.cfg.ResyncWait):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
		err = port.ClearInput()
	}
	if err != nil {
		h.logger.Error("Failed to clear input, reconnecting", zap.Error(err))
		return h.line.Reopen(ctx, gen)
	}
	return port, gen, nil
}

func (h *Hub) recordFrame(id uint8, direction string) {
	if h.metrics == nil {
		return
	}
	if s, ok := h.sides[id]; ok {
		h.metrics.RecordMuxFrame(s.entry.Name, direction)
	}
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
