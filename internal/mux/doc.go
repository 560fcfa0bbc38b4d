/*
Package mux multiplexes several serial ports over one serial line.

Every block crossing the multiplexed line is framed as

	[id u8][len u8][payload, len bytes]

where id names the port from the port table. A zero length or an id that is
not in the table means the receiver lost sync; it then discards its input
buffer, waits, and discards again before reading the next header.

Each side port gets a sender and a receiver goroutine. Receivers push blocks
onto a shared bus that a single goroutine writes to the multiplexed line;
the multiplexed receiver routes incoming frames to the matching sender.
Device failures never end a goroutine: the PortManager reopens the device
and the loop carries on.
*/
package mux
