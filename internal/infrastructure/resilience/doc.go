/*
Package resilience provides a circuit breaker for device reopen attempts.

# Overview

A serial port that disappears (USB adapter unplugged, pty peer gone) fails
every reopen until it comes back. The breaker lets the owning goroutine keep
retrying at a fixed pace while tripping to a longer pause after a run of
failures, so a missing device does not flood the log.

# Usage

	breaker := resilience.New("printer", resilience.Settings{
		Timeout: 2 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Reopen gate changed", zap.String("port", name),
				zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	port, err := resilience.Retry(ctx, breaker, 100*time.Millisecond, open)

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
