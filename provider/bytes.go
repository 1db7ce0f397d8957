package provider

import (
	"fmt"
	"unsafe"

	"github.com/harikrishnan94/shmem-alloc/ilist"
)

const bytesMaxAlign = 16

// pageNode is the intrusive node written into a reclaimed page while it
// sits on the free list, mirroring the chunk free list in package buddy:
// pages here play the role chunks play there, since every page handed out
// by Bytes is the same fixed size.
type pageNode struct {
	ilist.SListNode
}

// Bytes is a slab.PageProvider that carves fixed-size pages out of a
// single caller-supplied []byte arena: a bump pointer advances through
// untapped arena space, and pages returned via FreePage are threaded onto
// an intrusive free list and handed back out before the bump pointer
// advances further. Unlike Mmap, every page comes from memory the caller
// already owns, letting a Slab run entirely inside a pre-reserved,
// possibly shared-memory, region instead of making a syscall per page.
type Bytes struct {
	region       []byte
	regionStart  unsafe.Pointer
	pagesize     int
	numPages     int
	nextIndex    int
	numReclaimed int
	freePages    ilist.SListHead
}

// NewBytes creates a Bytes provider that serves pagesize-byte pages out of
// arena. pagesize is rounded up to the platform maximum alignment.
func NewBytes(pagesize int, arena []byte) (*Bytes, error) {
	if pagesize <= 0 {
		return nil, fmt.Errorf("provider: bytes: pagesize must be positive, got %d", pagesize)
	}
	if len(arena) == 0 {
		return nil, fmt.Errorf("provider: bytes: arena must not be empty")
	}

	pagesize = alignUp(pagesize, bytesMaxAlign)
	numPages := len(arena) / pagesize
	if numPages == 0 {
		return nil, fmt.Errorf("provider: bytes: arena of %d bytes too small for one page of %d bytes", len(arena), pagesize)
	}

	return &Bytes{
		region:      arena,
		regionStart: unsafe.Pointer(&arena[0]),
		pagesize:    pagesize,
		numPages:    numPages,
	}, nil
}

// AllocPage returns a pagesize-byte page from the arena, or nil if the
// arena is exhausted. size must equal the provider's configured pagesize.
// align is not checked: pages start at multiples of pagesize from the
// start of arena, so a page meets align only when both arena's start and
// pagesize are multiples of it.
func (p *Bytes) AllocPage(size, align int) unsafe.Pointer {
	if size != p.pagesize {
		return nil
	}

	if node := p.freePages.PopHead(); node != nil {
		p.numReclaimed--
		return unsafe.Pointer(node)
	}

	if p.nextIndex < p.numPages {
		ptr := unsafe.Add(p.regionStart, p.nextIndex*p.pagesize)
		p.nextIndex++
		return ptr
	}

	return nil
}

// FreePage returns ptr, previously returned by AllocPage, to the arena's
// free list for reuse by a later AllocPage.
func (p *Bytes) FreePage(ptr unsafe.Pointer, size int) {
	node := (*pageNode)(ptr)
	p.freePages.PushHead(&node.SListNode)
	p.numReclaimed++
}

// Available reports the number of pages remaining: reclaimed pages on the
// free list plus untapped pages past the bump pointer.
func (p *Bytes) Available() int {
	return p.numReclaimed + (p.numPages - p.nextIndex)
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
