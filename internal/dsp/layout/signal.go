package layout

import "encoding/binary"

// SignalSize is the number of bytes exchanged per notification.
const SignalSize = 4

// Signal is the advisory cursor snapshot carried by a notification.
type Signal struct {
	Read  uint16
	Write uint16
}

// Encode packs the signal as little-endian write<<16 | read.
func (s Signal) Encode() [SignalSize]byte {
	var b [SignalSize]byte
	binary.LittleEndian.PutUint32(b[:], uint32(s.Write)<<16|uint32(s.Read))
	return b
}

// DecodeSignal unpacks up to SignalSize bytes. Missing trailing bytes read
// as zero, so a short read still yields a value.
func DecodeSignal(b []byte) Signal {
	var raw [SignalSize]byte
	copy(raw[:], b)
	v := binary.LittleEndian.Uint32(raw[:])
	return Signal{Read: uint16(v), Write: uint16(v >> 16)}
}
