package mux

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/monitoring"
)

type rig struct {
	hub       *Hub
	line      *device
	linePeer  net.Conn
	sidePeers map[uint8]net.Conn
	metrics   *monitoring.Metrics
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		line:      newDevice(),
		sidePeers: make(map[uint8]net.Conn),
		metrics:   monitoring.NewMetrics(prometheus.NewRegistry()),
	}

	line, err := NewPortManager("line", r.line.open, zap.NewNop(),
		WithRetryInterval(time.Millisecond), WithMetrics(r.metrics))
	require.NoError(t, err)
	r.linePeer = r.line.peer(t)

	var sides []Side
	for _, e := range []PortEntry{{Name: "printer", ID: 1}, {Name: "camera", ID: 2}} {
		dev := newDevice()
		m, err := NewPortManager(e.Name, dev.open, zap.NewNop(), WithRetryInterval(time.Millisecond))
		require.NoError(t, err)
		r.sidePeers[e.ID] = dev.peer(t)
		sides = append(sides, Side{Entry: e, Manager: m})
	}

	r.hub, err = NewHub("mux-test", line, sides, HubConfig{ResyncWait: 10 * time.Millisecond}, zap.NewNop(), r.metrics)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.hub.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return r
}

func writeFrame(t *testing.T, w io.Writer, id uint8, data string) {
	t.Helper()
	buf, err := Frame{ID: id, Data: []byte(data)}.Encode()
	require.NoError(t, err)
	_, err = w.Write(buf)
	require.NoError(t, err)
}

func readString(t *testing.T, r io.Reader, n int) string {
	t.Helper()
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	return string(buf)
}

func TestHubSideToLine(t *testing.T) {
	r := newRig(t)

	_, err := r.sidePeers[1].Write([]byte("M105\n"))
	require.NoError(t, err)

	f, err := ReadFrame(r.linePeer)
	require.NoError(t, err)
	assert.Equal(t, Frame{ID: 1, Data: []byte("M105\n")}, f)

	_, err = r.sidePeers[2].Write([]byte("snap"))
	require.NoError(t, err)

	f, err = ReadFrame(r.linePeer)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), f.ID)
}

func TestHubLineToSide(t *testing.T) {
	r := newRig(t)

	writeFrame(t, r.linePeer, 2, "ok")
	writeFrame(t, r.linePeer, 1, "ok T:21")

	assert.Equal(t, "ok", readString(t, r.sidePeers[2], 2))
	assert.Equal(t, "ok T:21", readString(t, r.sidePeers[1], 7))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.MuxFrames.WithLabelValues("camera", monitoring.DirRX)))
}

func TestHubResyncsOnUnknownID(t *testing.T) {
	r := newRig(t)

	writeFrame(t, r.linePeer, 9, "x")
	writeFrame(t, r.linePeer, 1, "hi")

	assert.Equal(t, "hi", readString(t, r.sidePeers[1], 2))
	assert.Equal(t, int32(2), r.line.Port(0).clears.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.MuxDesyncs))
}

func TestHubResyncsOnZeroLength(t *testing.T) {
	r := newRig(t)

	_, err := r.linePeer.Write([]byte{1, 0})
	require.NoError(t, err)
	writeFrame(t, r.linePeer, 1, "z")

	assert.Equal(t, "z", readString(t, r.sidePeers[1], 1))
	assert.Equal(t, int32(2), r.line.Port(0).clears.Load())
}

func TestHubReopensLine(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.linePeer.Close())
	peer := r.line.peer(t)

	writeFrame(t, peer, 1, "back")
	assert.Equal(t, "back", readString(t, r.sidePeers[1], 4))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.MuxReconnects.WithLabelValues("line")))

	st := r.hub.Status()
	assert.Equal(t, uint64(2), st.Line.Generation)
	assert.Equal(t, "closed", st.Line.Breaker)
	assert.Equal(t, "mux-test", st.MuxID)
	require.Len(t, st.Sides, 2)
	assert.Equal(t, "printer", st.Sides[0].Name)
}

func TestNewHubValidation(t *testing.T) {
	dev := newDevice()
	line, err := NewPortManager("line", dev.open, zap.NewNop())
	require.NoError(t, err)
	defer line.Close()

	_, err = NewHub("x", line, nil, HubConfig{}, zap.NewNop(), nil)
	assert.ErrorIs(t, err, ErrNoPorts)

	side := Side{Entry: PortEntry{Name: "a", ID: 1}, Manager: line}
	_, err = NewHub("x", line, []Side{side, side}, HubConfig{}, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestWriteAllShortWrite(t *testing.T) {
	assert.ErrorIs(t, writeAll(zeroWriter{}, []byte("a")), io.ErrShortWrite)
}

type zeroWriter struct{}

func (zeroWriter) Write([]byte) (int, error) { return 0, nil }
