// Package kbuf allocates physically backed buffers through the kbuf manager
// device and maps them into the process.
//
// A buffer is registered with the kernel by a create ioctl, mapped through a
// per-buffer map device, and released by a destroy ioctl. The registration
// is owned by the returned Buffer: Close issues the destroy exactly once,
// before the mapping is torn down, and any failure part-way through Allocate
// unwinds the same way.
//
// Teardown never fails loudly. The process is usually exiting when a buffer
// is released, so destroy, unmap and close errors are logged and dropped.
package kbuf
