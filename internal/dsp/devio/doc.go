// Package devio is the thin seam between the DSP link and the kernel.
//
// Every device the link touches is opened, controlled and mapped through the
// Sys interface. Host implements it with real syscalls (golang.org/x/sys/unix
// for ioctl, msync and poll, github.com/edsrzf/mmap-go for mappings); tests
// substitute fakes so the allocator, accessor and notification channel can be
// exercised without the vendor drivers.
//
// Ioctl follows the vendor drivers' convention: a negative return value is an
// invalid-state error even when errno is clear.
package devio
