// Package provider contains slab.PageProvider implementations: Mmap, which
// requests pages directly from the kernel via anonymous mmap, and Bytes,
// which carves fixed-size pages out of a single caller-owned arena.
package provider

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mmap is a slab.PageProvider that backs every page with its own anonymous,
// private mmap region. It is suited to slabs whose pages are large enough
// that one syscall per page is not a bottleneck, and whose lifetime calls
// for returning memory to the OS immediately on Free.
type Mmap struct{}

// AllocPage maps size bytes of anonymous, zero-filled memory. align is
// advisory: mmap already returns page-aligned regions, which satisfies any
// align up to the system page size; larger alignments are not supported.
func (Mmap) AllocPage(size, align int) unsafe.Pointer {
	if size <= 0 {
		return nil
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil
	}
	return unsafe.Pointer(&data[0])
}

// FreePage unmaps the size-byte region starting at ptr, previously
// returned by AllocPage.
func (Mmap) FreePage(ptr unsafe.Pointer, size int) {
	if ptr == nil || size <= 0 {
		return
	}
	buf := unsafe.Slice((*byte)(ptr), size)
	if err := unix.Munmap(buf); err != nil {
		panic(fmt.Sprintf("provider: munmap failed: %v", err))
	}
}
