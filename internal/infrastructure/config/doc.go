// Package config provides 12-factor configuration for the bridge and the
// serial multiplexer.
//
// Configuration is loaded from environment variables with defaults that
// match the printer's device nodes. The binaries let CLI flags override
// individual values.
//
// Configuration Sections:
//   - Devices: control, kbuf manager and rpmsg device nodes
//   - Kbuf: name, length and type of the ring allocation
//   - Msgbox: rpmsg endpoint name and addresses
//   - Transport: handshake backoff and deadline
//   - Bridge: pty link path and poll pacing
//   - Server: status HTTP listener and rate limit
//   - Mux: multiplexed port and port table file
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Linking %s\n", cfg.Bridge.LinkPath)
//
// Environment Variables:
//   - DSP_DEBUG_DEVICE, KBUF_MANAGER_DEVICE, RPMSG_CTRL_DEVICE, RPMSG_CLASS_DIR, DEV_DIR
//   - KBUF_NAME, KBUF_LENGTH, KBUF_CACHED
//   - MSGBOX_NAME, MSGBOX_SRC, MSGBOX_DST
//   - HANDSHAKE_BACKOFF, HANDSHAKE_TIMEOUT
//   - BRIDGE_LINK, BRIDGE_POLL_INTERVAL
//   - STATUS_ADDR, STATUS_ENABLED, STATUS_RATE_LIMIT, STATUS_RATE_BURST
//   - MUX_DEVICE, MUX_BAUD, MUX_PORT_TABLE, MUX_RESYNC_WAIT, MUX_STATUS_ADDR
//   - LOG_LEVEL, LOG_DEV
package config
