// Package logging provides structured logging using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON output for log collectors on the printer
//   - Development: Colored console output for a serial console or ssh session
//
// Every long-running component gets its own named child logger tagged with
// the link or mux id it serves, so interleaved output from the bridge loop,
// the pty reader and the status server can be told apart.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	link := logger.ForLink("bridge", id.NewLinkID())
//	link.Info("Peer ready", zap.Duration("elapsed", d))
package logging
