// Package main is the entry point of dspbridge.
//
// dspbridge exposes the DSP's shared-memory ring as a serial port on the
// ARM side. At startup it:
//
//   - maps the dsp_debug control page and reads the shared-space descriptor
//   - registers a kbuf buffer at the ARM write address and maps its window
//   - creates the rpmsg notification endpoint
//   - runs the control-page handshake and waits for the DSP
//   - opens a pty and links it at the configured path (default /tmp/vtty/dsp)
//
// then copies bytes both ways until it receives SIGINT or SIGTERM.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Default devices, status server on 127.0.0.1:9110
//	./dspbridge
//
//	# Different link path, debug logs, give up if the DSP is silent for 30s
//	./dspbridge -link /tmp/vtty/klipper -log-level debug -handshake-timeout 30s
package main
