// Package slab implements a fixed-size object allocator layered over a
// pluggable page source. Pages are handed out by a PageProvider and carved
// into equal-size blocks with a bump-pointer cursor plus an intrusive free
// list threaded through reclaimed blocks; each returned pointer is prefixed
// by a single machine word pointing back at its owning page, giving Free
// O(1) page lookup without a page table.
package slab

import (
	"fmt"
	"unsafe"

	"github.com/harikrishnan94/shmem-alloc/ilist"
)

const (
	maxAlign      = 16 // MAXIMUM_ALIGNOF equivalent
	cacheLineSize = 64
)

// headerSize is the size in bytes of the per-block back-pointer prefix
// every allocation is offset by. One machine word, matching
// slab_get_header_size() in the original C: sizeof(slab_page_t **).
const headerSize = int(unsafe.Sizeof(uintptr(0)))

// PageProvider supplies and reclaims fixed-size, aligned pages of memory.
// Callers wire it to whatever backs the slab's pages: a carved-off region
// of a Buddy manager, an mmap'd arena, or plain heap memory for tests.
type PageProvider interface {
	AllocPage(size, align int) unsafe.Pointer
	FreePage(ptr unsafe.Pointer, size int)
}

// freeBlock is the intrusive node a freed block is threaded onto. It must
// be the first (and only) field so a block address can be reinterpreted
// directly as *freeBlock.
type freeBlock struct {
	ilist.SListNode
}

// page is the fixed header every page starts with. It must fit within one
// cache line, matching the original slab_page_t layout, so that hot-path
// bookkeeping (alloc/free counts, freelist head) stays in a single line.
type page struct {
	listNode        ilist.DListNode
	allocBlockCount int
	nextFreeIndex   int
	freelist        ilist.SListHead
	slab            *Slab
}

// Slab is a fixed-size block allocator over pages obtained from a
// PageProvider.
//
// Slab is not safe for concurrent use; callers needing thread safety must
// serialize access externally.
type Slab struct {
	pagesize   int
	blocksize  int
	blockCount int

	provider PageProvider

	activePage *page

	partiallyFull ilist.DListHead
	full          ilist.DListHead

	pageCount int
}

// ControlBlockSize reports the size in bytes of a Slab's own bookkeeping
// struct, for callers that carve their own memory for it (mirrors
// slab_control_block_size in the original C API).
func ControlBlockSize() int {
	return int(unsafe.Sizeof(Slab{}))
}

// HeaderSize reports the per-block prefix size in bytes that every
// returned pointer is offset past.
func HeaderSize() int {
	return headerSize
}

// New creates a Slab serving fixed blocksize-byte objects out of pages of
// pagesize bytes obtained from provider. Both sizes are rounded up to the
// platform maximum alignment. It returns an error if the resulting page
// cannot hold at least one block after the page header.
func New(pagesize, blocksize int, provider PageProvider) (*Slab, error) {
	if provider == nil {
		return nil, fmt.Errorf("slab: provider must not be nil")
	}
	if blocksize <= 0 {
		return nil, fmt.Errorf("slab: blocksize must be positive, got %d", blocksize)
	}
	if pagesize <= 0 {
		return nil, fmt.Errorf("slab: pagesize must be positive, got %d", pagesize)
	}

	blocksize = alignUp(blocksize, maxAlign)
	pagesize = alignUp(pagesize, maxAlign)

	headerLen := int(unsafe.Sizeof(page{}))
	if headerLen > cacheLineSize {
		return nil, fmt.Errorf("slab: internal page header (%d bytes) exceeds cache line size", headerLen)
	}

	blockCount := (pagesize - headerLen) / blocksize
	if blockCount <= 0 {
		return nil, fmt.Errorf("slab: pagesize %d too small to hold any block of size %d with header %d", pagesize, blocksize, headerLen)
	}

	s := &Slab{
		pagesize:   pagesize,
		blocksize:  blocksize,
		blockCount: blockCount,
		provider:   provider,
	}
	s.partiallyFull.Init()
	s.full.Init()

	return s, nil
}

// Alloc returns a pointer to a new, uninitialized block with
// BlockSize()-HeaderSize() usable bytes (the rest of the block holds the
// back-pointer prefix), or nil if the provider could not supply a fresh
// page.
func (s *Slab) Alloc() unsafe.Pointer {
	if mem := s.allocFromActivePage(); mem != nil {
		return mem
	}

	if s.activePage != nil {
		debugAssert(s.pageIsFull(s.activePage), "slab: active page rotated out while not full")
		s.full.PushHead(&s.activePage.listNode)
	}
	s.activePage = nil

	if !s.partiallyFull.Empty() {
		node := s.partiallyFull.PopHead()
		s.activePage = pageFromListNode(node)
		debugAssert(!s.pageIsEmpty(s.activePage), "slab: partially-full page was actually empty")
		return s.allocFromActivePage()
	}

	s.activePage = s.allocPage()
	if s.activePage == nil {
		return nil
	}
	return s.allocFromActivePage()
}

// Free returns the block at ptr, previously returned by Alloc, to its
// owning page. The header prefix before ptr is trusted; only under the
// shmalloc_debug build tag does Free panic when that prefix names a page
// of a different Slab.
func (s *Slab) Free(ptr unsafe.Pointer) {
	pg := pageOf(ptr)
	debugAssert(pg.slab == s, "slab: Free called with pointer from a different Slab")

	wasFull := s.pageIsFull(pg)
	s.pageFree(pg, blockStart(ptr))

	if pg == s.activePage {
		return
	}

	if s.pageIsEmpty(pg) {
		ilist.Remove(&pg.listNode)
		s.freePage(pg)
	} else if wasFull {
		ilist.Remove(&pg.listNode)
		s.partiallyFull.PushHead(&pg.listNode)
	}
}

// Destroy returns every page currently held by the Slab back to its
// provider. The Slab must not be used afterward.
func (s *Slab) Destroy() {
	if s.activePage != nil {
		s.freePage(s.activePage)
		s.activePage = nil
	}

	s.partiallyFull.ForEachMutable(func(n *ilist.DListNode) {
		ilist.Remove(n)
		s.freePage(pageFromListNode(n))
	})
	s.full.ForEachMutable(func(n *ilist.DListNode) {
		ilist.Remove(n)
		s.freePage(pageFromListNode(n))
	})
}

// Size reports the total bytes currently held by the Slab across all of
// its pages, in use or not.
func (s *Slab) Size() int {
	return s.pageCount * s.pagesize
}

// PageSize reports the aligned page size this Slab requests from its
// provider.
func (s *Slab) PageSize() int {
	return s.pagesize
}

// BlockSize reports the aligned per-object size this Slab serves.
func (s *Slab) BlockSize() int {
	return s.blocksize
}

func (s *Slab) allocFromActivePage() unsafe.Pointer {
	if s.activePage == nil {
		return nil
	}
	if mem := s.pageAlloc(s.activePage); mem != nil {
		return userPointer(mem, s.activePage)
	}
	return nil
}

func (s *Slab) allocPage() *page {
	raw := s.provider.AllocPage(s.pagesize, cacheLineSize)
	if raw == nil {
		return nil
	}
	s.pageCount++
	pg := (*page)(raw)
	*pg = page{slab: s}
	return pg
}

func (s *Slab) freePage(pg *page) {
	s.pageCount--
	s.provider.FreePage(unsafe.Pointer(pg), s.pagesize)
}

func (s *Slab) pageAlloc(pg *page) unsafe.Pointer {
	if node := pg.freelist.PopHead(); node != nil {
		pg.allocBlockCount++
		return unsafe.Pointer(node)
	}

	if pg.nextFreeIndex < s.blockCount {
		headerLen := int(unsafe.Sizeof(page{}))
		mem := unsafe.Add(unsafe.Pointer(pg), headerLen+s.blocksize*pg.nextFreeIndex)
		pg.nextFreeIndex++
		pg.allocBlockCount++
		return mem
	}

	return nil
}

func (s *Slab) pageFree(pg *page, ptr unsafe.Pointer) {
	pg.allocBlockCount--
	pg.freelist.PushHead(&(*freeBlock)(ptr).SListNode)
}

func (s *Slab) pageIsEmpty(pg *page) bool {
	return pg.allocBlockCount == 0
}

func (s *Slab) pageIsFull(pg *page) bool {
	return pg.allocBlockCount == s.blockCount
}

// userPointer writes the back-pointer prefix and returns the pointer past
// it that callers receive.
func userPointer(mem unsafe.Pointer, pg *page) unsafe.Pointer {
	*(**page)(mem) = pg
	return unsafe.Add(mem, headerSize)
}

// blockStart recovers the block start (header prefix) from a user pointer.
func blockStart(ptr unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(ptr, -headerSize)
}

// pageOf recovers the owning page from a user pointer via its header
// prefix, giving O(1) lookup without a page table.
func pageOf(ptr unsafe.Pointer) *page {
	return *(**page)(blockStart(ptr))
}

func pageFromListNode(n *ilist.DListNode) *page {
	return (*page)(unsafe.Pointer(n))
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
