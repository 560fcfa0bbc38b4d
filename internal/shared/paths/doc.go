// Package paths provides the device and sysfs locations used by the DSP link.
//
// The vendor kernel exposes a fixed set of nodes. Per-buffer map devices and
// rpmsg endpoint devices are created at runtime, so their paths are derived
// from values the drivers hand back.
//
// # Device Layout
//
//	/dev/
//	  ├── dsp_debug              (shared control region, ioctl + mmap)
//	  ├── kbuf-mgr-0             (physical buffer manager)
//	  ├── kbuf-map-<minor>-<name>(per-buffer map device)
//	  ├── rpmsg_ctrl0            (rpmsg endpoint factory)
//	  └── rpmsg<N>               (created endpoint)
//	/sys/class/rpmsg/rpmsg<N>/name
//
// # Usage
//
//	mapDev := paths.KbufMapDevice(paths.DevDir, buf.Minor, "dsp-ring")
//	ept := paths.Device(paths.DevDir, "rpmsg1")
package paths
