// Package main is the entry point of serialmux.
//
// serialmux carries several serial ports over a single serial line. The
// ports are listed in a port table (TOML, or YAML by file extension):
//
//	[printer]
//	id = 1
//	device_path = "/dev/ttyUSB0"
//	baud_rate = 115200
//
// With -real the table's devices are opened directly. With -virtual each
// entry instead gets a pty linked at $TMPDIR/vtty/<name> and device_path is
// ignored. Exactly one of the two must be given.
//
// Usage:
//
//	./serialmux -config ports.toml -device /dev/ttyS2 -baud 115200 -virtual
package main
