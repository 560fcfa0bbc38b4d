/*
Package transport implements the byte-stream ring shared with the DSP.

# Layout

The buffer window is two 4 KiB pages. The first page is written only by
this side, the second only by the DSP. Each page ends with a 12-byte head
record holding that side's read and write cursors and an init flag; the
bytes in [layout.MinAddr, layout.MaxAddr) form a circular payload area.

# Lifecycle

	t, err := transport.New(buf, region, buf.PhysAddr(), endpoint,
		transport.WithLogger(logger),
		transport.WithMetrics(metrics))
	t.NegotiateControl()
	err = t.WaitPeerReady(ctx)

	for {
		// on notification
		data, err := t.Drain()
		// ...
		err = t.Send(reply)
	}

A Transport has a single owner. Head records are updated with several
non-atomic stores, so callers sharing one across goroutines must serialize
Drain and Send themselves.

# Errors

Send refuses empty or oversized payloads with ErrPayloadSize and reports
backpressure with ErrBufferFull; neither changes any cursor, so the caller
may retry. A remote head whose cursors fall outside the payload range is
reported as ErrCorruptHead and never used as an index.
*/
package transport
