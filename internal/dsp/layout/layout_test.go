package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstants(t *testing.T) {
	assert.Equal(t, 12, MinAddr)
	assert.Equal(t, 4084, MaxAddr)
	assert.Equal(t, 4072, Span)
	assert.Less(t, MaxPayload, Span)
}

func TestHeadRoundTrip(t *testing.T) {
	b := make([]byte, HeadSize)
	h := Head{Read: 0x0102, Write: 0x0fe0, InitState: InitAcked}
	h.Encode(b)

	assert.Equal(t, []byte{
		0x02, 0x01, 0, 0,
		0xe0, 0x0f, 0, 0,
		0x02, 0, 0, 0,
	}, b)
	assert.Equal(t, h, DecodeHead(b))
}

func TestNewHead(t *testing.T) {
	h := NewHead()
	assert.Equal(t, uint32(MinAddr), h.Read)
	assert.Equal(t, uint32(MinAddr), h.Write)
	assert.Equal(t, InitPeer, h.InitState)
	assert.True(t, h.Valid())
}

func TestHeadValid(t *testing.T) {
	tests := []struct {
		name string
		head Head
		want bool
	}{
		{"fresh", NewHead(), true},
		{"last payload byte", Head{Read: MaxAddr - 1, Write: MinAddr}, true},
		{"read at MaxAddr", Head{Read: MaxAddr, Write: MinAddr}, false},
		{"write below MinAddr", Head{Read: MinAddr, Write: 0}, false},
		{"garbage", Head{Read: 6000, Write: 6000}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.head.Valid())
		})
	}
}

func TestUsedFree(t *testing.T) {
	tests := []struct {
		name        string
		read, write uint32
		used, free  int
	}{
		{"empty", 100, 100, 0, Span},
		{"forward", 12, 112, 100, Span - 100},
		{"wrapped", 4000, 40, Span - 3960, 3960},
		{"one short of full", 13, 12, Span - 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.used, Used(tt.read, tt.write))
			assert.Equal(t, tt.free, Free(tt.read, tt.write))
		})
	}
}

// Walking the ring byte by byte must agree with the closed-form size.
func TestUsedMatchesWalk(t *testing.T) {
	cursors := []uint32{MinAddr, MinAddr + 1, 500, 2048, MaxAddr - 8, MaxAddr - 1}
	for _, r := range cursors {
		for _, w := range cursors {
			n := 0
			for c := r; c != w; c = Advance(c, 1) {
				n++
				require.LessOrEqual(t, n, Span)
			}
			assert.Equal(t, n, Used(r, w), "read=%d write=%d", r, w)
			if r != w {
				assert.Equal(t, Span-n, Free(r, w), "read=%d write=%d", r, w)
			}
		}
	}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name   string
		cursor uint32
		n      int
		want   uint32
	}{
		{"no move", 100, 0, 100},
		{"forward", 12, 100, 112},
		{"to last byte", 4080, 3, 4083},
		{"exactly MaxAddr wraps", 4080, 4, MinAddr},
		{"past MaxAddr", 4080, 8, 16},
		{"full span", 200, Span, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Advance(tt.cursor, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, InRange(got))
		})
	}
}

func TestSignal(t *testing.T) {
	s := Signal{Read: 0x0010, Write: 0x0fe0}
	b := s.Encode()
	assert.Equal(t, [SignalSize]byte{0x10, 0x00, 0xe0, 0x0f}, b)
	assert.Equal(t, s, DecodeSignal(b[:]))
}

func TestDecodeSignalShort(t *testing.T) {
	assert.Equal(t, Signal{}, DecodeSignal(nil))
	assert.Equal(t, Signal{Read: 0x0120}, DecodeSignal([]byte{0x20, 0x01}))
	assert.Equal(t, Signal{Read: 0x0120, Write: 0x05}, DecodeSignal([]byte{0x20, 0x01, 0x05}))
}
