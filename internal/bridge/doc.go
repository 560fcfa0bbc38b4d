/*
Package bridge shuttles bytes between the DSP ring and a virtual TTY.

One owner goroutine drives the transport: it paces itself with a rate
limiter, drains the ring whenever the notification endpoint reports new
data and writes the result to the TTY, then sends whatever the TTY produced
in chunks of at most layout.MaxPayload bytes. A separate goroutine blocks
on the TTY and hands its reads to the owner over a channel, so the
transport is never touched concurrently.

Errors in the steady state are logged and the loop keeps going. A full
ring leaves the chunk queued for the next round.
*/
package bridge
