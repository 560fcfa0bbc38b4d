package layout

import (
	"encoding/binary"
	"fmt"
)

const (
	// PageSize is the size of one direction's shared page.
	PageSize = 4096

	// HeadSize is the encoded size of a Head record.
	HeadSize = 12

	// HeadOffset is where the Head record starts inside a page.
	HeadOffset = PageSize - HeadSize

	// MinAddr is the first payload byte a cursor may point at.
	MinAddr = HeadSize

	// MaxAddr is one past the last payload byte; cursors never rest here.
	MaxAddr = HeadOffset

	// Span is the number of payload bytes in one page.
	Span = MaxAddr - MinAddr

	// WindowSize covers the local page followed by the remote page.
	WindowSize = 2 * PageSize

	// MaxPayload is the largest single message accepted for sending.
	MaxPayload = 4000
)

// Init states stored in Head.InitState.
const (
	InitNever uint32 = 0
	InitPeer  uint32 = 1
	InitAcked uint32 = 2
)

// Head is one side's claim of its read and write cursors.
type Head struct {
	Read      uint32
	Write     uint32
	InitState uint32
}

// NewHead returns a head with both cursors at MinAddr and the ready flag set.
func NewHead() Head {
	return Head{Read: MinAddr, Write: MinAddr, InitState: InitPeer}
}

// Encode writes h into b in little-endian order. b must be at least HeadSize.
func (h Head) Encode(b []byte) {
	_ = b[HeadSize-1]
	binary.LittleEndian.PutUint32(b[0:4], h.Read)
	binary.LittleEndian.PutUint32(b[4:8], h.Write)
	binary.LittleEndian.PutUint32(b[8:12], h.InitState)
}

// DecodeHead reads a Head from the first HeadSize bytes of b.
func DecodeHead(b []byte) Head {
	_ = b[HeadSize-1]
	return Head{
		Read:      binary.LittleEndian.Uint32(b[0:4]),
		Write:     binary.LittleEndian.Uint32(b[4:8]),
		InitState: binary.LittleEndian.Uint32(b[8:12]),
	}
}

// Valid reports whether both cursors lie in the payload range.
func (h Head) Valid() bool {
	return InRange(h.Read) && InRange(h.Write)
}

func (h Head) String() string {
	return fmt.Sprintf("head{read=%d write=%d init=%d}", h.Read, h.Write, h.InitState)
}

// InRange reports whether cursor is a legal payload index.
func InRange(cursor uint32) bool {
	return cursor >= MinAddr && cursor < MaxAddr
}

// Used returns how many bytes are queued between read and write.
func Used(read, write uint32) int {
	if read <= write {
		return int(write - read)
	}
	return Span - int(read-write)
}

// Free returns how many bytes a writer at write may still place before
// catching up with read. Equal cursors mean an empty ring, so the full span
// is reported; callers keep at least one byte of slack.
func Free(read, write uint32) int {
	if read <= write {
		return Span - int(write-read)
	}
	return int(read - write)
}

// Advance moves cursor forward by n bytes, wrapping at MaxAddr.
func Advance(cursor uint32, n int) uint32 {
	next := int(cursor) + n
	if next >= MaxAddr {
		next = MinAddr + (next - MaxAddr)
	}
	return uint32(next)
}
