// Package buddy implements a power-of-two block allocator over a single
// contiguous, caller-supplied memory region. The region is carved into
// fixed-size chunks on demand, and each chunk is recursively split into
// power-of-two blocks to satisfy allocation requests within
// [minAllocSize, maxAllocSize].
//
// Occupancy of every block at every size class within a chunk is tracked
// by a single per-chunk bitmap (the "control block"): bit 1 means the
// block is handed out or has been split into smaller blocks, bit 0 means
// free. Free blocks thread an intrusive list node through their own
// memory, so no allocation happens off the managed region.
package buddy

import (
	"fmt"
	"math/bits"
	"os"
	"unsafe"

	"github.com/harikrishnan94/shmem-alloc/ilist"
)

const (
	minBlockAlign = 16 // smallest block must hold two list-node pointers
	maxAlign      = 16 // platform maximum alignment used throughout
)

// freeNode is the intrusive list node buddy writes into every free block.
// It must be the first (and only) field so a *ilist.DListNode recovered
// from a free list can be reinterpreted directly as a block address.
type freeNode struct {
	ilist.DListNode
}

// chunkNode is the intrusive node written into reclaimed, fully-free
// chunks. Chunks are only ever pushed/popped at the head, never removed
// from an arbitrary position, so a singly linked node suffices.
type chunkNode struct {
	ilist.SListNode
}

// Buddy is a buddy-system allocator over one caller-supplied region.
//
// Buddy is not safe for concurrent use; callers needing thread safety
// must serialize access externally, per spec.
type Buddy struct {
	region      []byte
	regionStart unsafe.Pointer

	minAllocSize int
	maxAllocSize int
	log2Min      int

	numSizeClasses  int
	controlBlockLen int // bytes per chunk's control block

	controlBlockBaseOff int // offset 0 of region, kept explicit for clarity
	chunkStartOff       int
	numUsableChunks     int
	nextChunkIndex      int
	numChunksUsed       int
	numChunksReclaimed  int

	freeLists  []ilist.DListHead // one per size class
	freeChunks ilist.SListHead   // reclaimed, fully-free chunks
}

// Stats reports point-in-time bookkeeping counters, useful for tests and
// diagnostics; none of it is load-bearing for correctness.
type Stats struct {
	ChunksUsed      int
	ChunksReclaimed int
	NextChunkIndex  int
	NumUsableChunks int
}

// Create places a Buddy manager's bookkeeping over region and prepares it
// to serve allocations in [minAllocSize, maxAllocSize]. It returns an
// error if the sizes are invalid or region is too small to hold the
// control-block array plus at least one chunk.
func Create(minAllocSize, maxAllocSize int, region []byte) (*Buddy, error) {
	if minAllocSize < minBlockAlign {
		return nil, fmt.Errorf("buddy: minAllocSize must be >= %d, got %d", minBlockAlign, minAllocSize)
	}
	if !isPowerOfTwo(minAllocSize) {
		return nil, fmt.Errorf("buddy: minAllocSize must be a power of two, got %d", minAllocSize)
	}
	if !isPowerOfTwo(maxAllocSize) {
		return nil, fmt.Errorf("buddy: maxAllocSize must be a power of two, got %d", maxAllocSize)
	}
	if maxAllocSize <= minAllocSize {
		return nil, fmt.Errorf("buddy: maxAllocSize (%d) must be > minAllocSize (%d)", maxAllocSize, minAllocSize)
	}
	if len(region) == 0 {
		return nil, fmt.Errorf("buddy: region must not be empty")
	}

	log2Min := log2(minAllocSize)
	log2Max := log2(maxAllocSize)
	numSizeClasses := log2Max - log2Min + 1

	controlBlockLen := controlBlockSize(minAllocSize, maxAllocSize)

	maxUsableChunks := len(region) / maxAllocSize
	if maxUsableChunks == 0 {
		return nil, fmt.Errorf("buddy: region of %d bytes too small for one chunk of %d bytes", len(region), maxAllocSize)
	}

	// The first chunk starts at the next maxAllocSize-aligned address past
	// the control blocks, so every block is aligned to its own size.
	base := int(uintptr(unsafe.Pointer(&region[0])))
	chunkStartOff := alignUp(base+maxUsableChunks*controlBlockLen, maxAllocSize) - base
	if chunkStartOff >= len(region) {
		return nil, fmt.Errorf("buddy: region of %d bytes too small for control blocks (%d bytes) plus one chunk", len(region), chunkStartOff)
	}
	numUsableChunks := (len(region) - chunkStartOff) / maxAllocSize
	if numUsableChunks == 0 {
		return nil, fmt.Errorf("buddy: region of %d bytes too small for any chunk after control blocks", len(region))
	}

	// Control blocks must be pre-zeroed: bit 0 means free.
	controlArea := maxUsableChunks * controlBlockLen
	if controlArea > len(region) {
		controlArea = len(region)
	}
	for i := 0; i < controlArea; i++ {
		region[i] = 0
	}

	b := &Buddy{
		region:          region,
		regionStart:     unsafe.Pointer(&region[0]),
		minAllocSize:    minAllocSize,
		maxAllocSize:    maxAllocSize,
		log2Min:         log2Min,
		numSizeClasses:  numSizeClasses,
		controlBlockLen: controlBlockLen,
		chunkStartOff:   chunkStartOff,
		numUsableChunks: numUsableChunks,
		freeLists:       make([]ilist.DListHead, numSizeClasses),
	}
	for i := range b.freeLists {
		b.freeLists[i].Init()
	}

	return b, nil
}

// Alloc returns a block of at least size bytes, aligned to minAllocSize,
// or nil if size is out of [minAllocSize, maxAllocSize] or the manager is
// exhausted.
func (b *Buddy) Alloc(size int) unsafe.Pointer {
	if size < b.minAllocSize || size > b.maxAllocSize {
		return nil
	}
	return b.allocClass(b.sizeClass(size))
}

func (b *Buddy) allocClass(szc int) unsafe.Pointer {
	var off int
	var ok bool
	split := false

	if node := b.freeLists[szc].PopHead(); node != nil {
		off = b.offsetOf(unsafe.Pointer(node))
		ok = true
	} else if szc != b.numSizeClasses-1 {
		parent := b.allocClass(szc + 1)
		if parent == nil {
			return nil
		}
		off = b.offsetOf(parent)
		ok = true
		split = true
	} else {
		off, ok = b.chunkAlloc()
	}

	if !ok {
		return nil
	}

	b.adjustControlBlock(off, szc, split)
	return unsafe.Add(b.regionStart, off)
}

// adjustControlBlock marks the block at off/szc in-use. If split is true,
// the block was carved from a larger free block: its buddy half is
// already free and gets pushed onto the class-szc free list.
func (b *Buddy) adjustControlBlock(off, szc int, split bool) {
	cb := b.controlBlock(off)
	debugAssert(b.blockFree(cb, off, szc), "buddy: marking already in-use block as in-use")
	b.markInUse(cb, off, szc)

	if split {
		buddyOff := b.buddyOffset(off, szc)
		debugAssert(b.blockFree(cb, buddyOff, szc), "buddy: split buddy half already in-use")
		b.freeLists[szc].PushHead(&b.nodeAt(buddyOff).DListNode)
	}
}

// Free returns the block at ptr, previously returned by Alloc(size), to
// the manager. If ptr lies outside the managed region it writes a
// diagnostic to os.Stderr and panics. A size outside
// [minAllocSize, maxAllocSize] is ignored.
func (b *Buddy) Free(ptr unsafe.Pointer, size int) {
	off := b.offsetOf(ptr)
	regionEnd := len(b.region)
	if off < b.chunkStartOff || off >= regionEnd {
		fmt.Fprintf(os.Stderr, "buddy: Free called with pointer outside managed region (offset %d)\n", off)
		panic("buddy: invalid free: pointer outside region")
	}
	if size < b.minAllocSize || size > b.maxAllocSize {
		return
	}

	b.freeClass(off, b.sizeClass(size))
}

func (b *Buddy) freeClass(off, szc int) {
	cb := b.controlBlock(off)

	debugAssert(!b.blockFree(cb, off, szc), "buddy: double free detected on control bitmap")
	b.markFree(cb, off, szc)

	if szc == b.numSizeClasses-1 {
		b.chunkFree(off)
		return
	}

	if b.bothFree(cb, off, szc) {
		buddyOff := b.buddyOffset(off, szc)
		ilist.Remove(&b.nodeAt(buddyOff).DListNode)
		lower := off
		if buddyOff < lower {
			lower = buddyOff
		}
		b.freeClass(lower, szc+1)
		return
	}

	b.freeLists[szc].PushHead(&b.nodeAt(off).DListNode)
}

// chunkAlloc obtains a fresh, fully-free chunk: either recycled from the
// reclaimed-chunks list, or carved from the untapped tail of the region.
func (b *Buddy) chunkAlloc() (int, bool) {
	if node := b.freeChunks.PopHead(); node != nil {
		off := b.offsetOf(unsafe.Pointer(node))
		b.numChunksReclaimed--
		b.zeroControlBlock(off)
		b.numChunksUsed++
		return off, true
	}
	if b.nextChunkIndex < b.numUsableChunks {
		off := b.chunkStartOff + b.nextChunkIndex*b.maxAllocSize
		b.nextChunkIndex++
		b.numChunksUsed++
		b.zeroControlBlock(off)
		return off, true
	}
	return 0, false
}

func (b *Buddy) chunkFree(off int) {
	b.numChunksUsed--
	b.numChunksReclaimed++
	node := (*chunkNode)(unsafe.Add(b.regionStart, off))
	b.freeChunks.PushHead(&node.SListNode)
}

func (b *Buddy) zeroControlBlock(chunkOff int) {
	chunkID := (chunkOff - b.chunkStartOff) / b.maxAllocSize
	start := chunkID * b.controlBlockLen
	for i := start; i < start+b.controlBlockLen; i++ {
		b.region[i] = 0
	}
}

// Available returns the free bytes: blocks currently sitting on a
// size-class free list, plus reclaimed fully-free chunks and chunks not
// yet carved from the region.
func (b *Buddy) Available() int {
	total := 0
	for szc := range b.freeLists {
		fl := &b.freeLists[szc]
		count := 0
		fl.ForEachMutable(func(*ilist.DListNode) { count++ })
		total += count * b.blockSize(szc)
	}
	total += (b.numChunksReclaimed + b.numUsableChunks - b.nextChunkIndex) * b.maxAllocSize
	return total
}

// Stats reports current bookkeeping counters.
func (b *Buddy) Stats() Stats {
	return Stats{
		ChunksUsed:      b.numChunksUsed,
		ChunksReclaimed: b.numChunksReclaimed,
		NextChunkIndex:  b.nextChunkIndex,
		NumUsableChunks: b.numUsableChunks,
	}
}

// --- pointer / bitmap mapping ---

func (b *Buddy) sizeClass(size int) int {
	return log2(size) - b.log2Min
}

func (b *Buddy) blockSize(szc int) int {
	return b.minAllocSize << uint(szc)
}

func (b *Buddy) offsetOf(ptr unsafe.Pointer) int {
	return int(uintptr(ptr) - uintptr(b.regionStart))
}

func (b *Buddy) nodeAt(off int) *freeNode {
	return (*freeNode)(unsafe.Add(b.regionStart, off))
}

// controlBlock returns the byte slice of the control block owning the
// block at region offset off.
func (b *Buddy) controlBlock(off int) []byte {
	chunkID := (off - b.chunkStartOff) / b.maxAllocSize
	start := chunkID * b.controlBlockLen
	return b.region[start : start+b.controlBlockLen]
}

// bitIndex computes the control-bitmap bit for the block at chunk-relative
// offset chunkOffset and size class szc.
func (b *Buddy) bitIndex(chunkOffset, szc int) int {
	return (1 << uint(b.numSizeClasses-szc-1)) - 1 + chunkOffset/b.blockSize(szc)
}

func (b *Buddy) chunkOffsetOf(off int) int {
	return (off - b.chunkStartOff) % b.maxAllocSize
}

func (b *Buddy) markInUse(cb []byte, off, szc int) {
	idx := b.bitIndex(b.chunkOffsetOf(off), szc)
	cb[idx/8] |= 1 << uint(idx%8)
}

func (b *Buddy) markFree(cb []byte, off, szc int) {
	idx := b.bitIndex(b.chunkOffsetOf(off), szc)
	cb[idx/8] &^= 1 << uint(idx%8)
}

func (b *Buddy) blockFree(cb []byte, off, szc int) bool {
	idx := b.bitIndex(b.chunkOffsetOf(off), szc)
	return cb[idx/8]&(1<<uint(idx%8)) == 0
}

func (b *Buddy) bothFree(cb []byte, off, szc int) bool {
	return b.blockFree(cb, off, szc) && b.blockFree(cb, b.buddyOffset(off, szc), szc)
}

// buddyOffset returns the region offset of the buddy of the block at off
// with size class szc, by flipping the address bit at log2(blockSize).
func (b *Buddy) buddyOffset(off, szc int) int {
	chunkOffset := b.chunkOffsetOf(off)
	chunkBase := off - chunkOffset
	shift := uint(log2(b.blockSize(szc)))
	n := chunkOffset >> shift
	buddyChunkOffset := (n ^ 1) << shift
	return chunkBase + buddyChunkOffset
}

// --- small numeric helpers ---

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func log2(n int) int {
	return bits.Len(uint(n)) - 1
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// controlBlockSize returns the per-chunk control bitmap size in bytes:
// ceil((max/min)*2/8), rounded up to maxAlign.
func controlBlockSize(minAllocSize, maxAllocSize int) int {
	bitsNeeded := (maxAllocSize / minAllocSize) * 2
	bytesNeeded := (bitsNeeded + 7) / 8
	return alignUp(bytesNeeded, maxAlign)
}
