// Package layout describes the memory contract shared with the DSP firmware.
//
// Each direction of the link owns one 4 KiB page. The last 12 bytes of a page
// hold that page's Head record; the bytes before it form the circular payload
// area. Cursors index the page directly, so the payload range is
// [MinAddr, MaxAddr) rather than starting at zero.
//
// Page layout:
//
//	0        MinAddr                        MaxAddr   PageSize
//	| unused |  payload (circular)          |  Head   |
//
// The sizes are fixed by the firmware and are not negotiated at runtime.
package layout
