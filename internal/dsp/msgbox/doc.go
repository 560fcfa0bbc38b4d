// Package msgbox is the out-of-band notification channel between the ARM
// and DSP sides of the link.
//
// A named rpmsg endpoint is created through the rpmsg control device. The
// kernel then publishes a new rpmsg<N> class entry whose name attribute
// matches the requested name; the endpoint device is /dev/rpmsg<N>.
//
// Each notification is four bytes, a little-endian u32 packing
// write<<16 | read. The cursors are advisory: the authoritative values live
// in the shared Head records, a signal only means "look now".
//
// Example Usage:
//
//	ept, err := msgbox.Open(devio.NewHost(), msgbox.DefaultConfig(), logger)
//	if err != nil {
//	    return err
//	}
//	defer ept.Close()
//
//	if ok, _ := ept.HasSignal(); ok {
//	    fresh, err := ept.ReadSignal(localRead)
//	    ...
//	}
package msgbox
