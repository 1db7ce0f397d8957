// Package shmalloc wires the buddy, slab, and provider packages together
// into the two memory managers most callers need: a standalone Buddy over
// a freshly mmap'd region, and a fixed-size Slab backed by anonymous mmap
// pages or by pages carved from a caller-owned arena.
package shmalloc

import (
	"fmt"
	"unsafe"

	"github.com/harikrishnan94/shmem-alloc/buddy"
	"github.com/harikrishnan94/shmem-alloc/provider"
	"github.com/harikrishnan94/shmem-alloc/slab"
)

// NewBuddy allocates a regionSize-byte arena via anonymous mmap and places
// a buddy.Buddy manager over it, serving allocations in
// [minAllocSize, maxAllocSize]. The returned region must be released with
// provider.Mmap{}.FreePage(unsafe.Pointer(&region[0]), regionSize) once the
// Buddy manager is no longer needed.
func NewBuddy(minAllocSize, maxAllocSize, regionSize int) (*buddy.Buddy, []byte, error) {
	if regionSize <= 0 {
		return nil, nil, fmt.Errorf("shmalloc: regionSize must be positive, got %d", regionSize)
	}

	var m provider.Mmap
	raw := m.AllocPage(regionSize, 16)
	if raw == nil {
		return nil, nil, fmt.Errorf("shmalloc: failed to mmap %d bytes for buddy region", regionSize)
	}
	region := unsafe.Slice((*byte)(raw), regionSize)

	b, err := buddy.Create(minAllocSize, maxAllocSize, region)
	if err != nil {
		m.FreePage(raw, regionSize)
		return nil, nil, err
	}
	return b, region, nil
}

// NewSlab creates a slab.Slab serving fixed blocksize-byte objects, with
// pages sourced directly from anonymous mmap via provider.Mmap.
func NewSlab(pagesize, blocksize int) (*slab.Slab, error) {
	return slab.New(pagesize, blocksize, provider.Mmap{})
}

// NewArenaSlab creates a slab.Slab whose pages are carved out of a single
// arena-byte arena via provider.Bytes, for callers that want every page
// to live inside memory they already own (for example, a region destined
// for shared-memory mapping) instead of one mmap call per page.
func NewArenaSlab(pagesize, blocksize int, arena []byte) (*slab.Slab, error) {
	pages, err := provider.NewBytes(pagesize, arena)
	if err != nil {
		return nil, err
	}
	return slab.New(pagesize, blocksize, pages)
}
