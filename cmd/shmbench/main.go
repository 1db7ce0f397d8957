// Command shmbench exercises the buddy and slab allocators with
// configurable workloads and reports basic throughput and occupancy
// statistics. There is no CLI framework anywhere in the retrieval pack's
// dependency surface, so this driver uses the standard library's flag
// package, matching how the rest of the ecosystem in scope handles simple
// argument parsing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/harikrishnan94/shmem-alloc/buddy"
	"github.com/harikrishnan94/shmem-alloc/slab"
)

func main() {
	mode := flag.String("mode", "buddy", "workload to run: buddy or slab")
	minAlloc := flag.Int("min-alloc", 4096, "buddy: minimum allocation size in bytes")
	maxAlloc := flag.Int("max-alloc", 4*1024*1024, "buddy: maximum allocation size (chunk size) in bytes")
	regionSize := flag.Int("region", 64*1024*1024, "buddy: total region size in bytes")
	pageSize := flag.Int("page-size", 4096, "slab: page size in bytes")
	blockSize := flag.Int("block-size", 64, "slab: fixed block size in bytes")
	iterations := flag.Int("n", 100000, "number of alloc/free pairs to run")
	flag.Parse()

	switch *mode {
	case "buddy":
		runBuddyBench(*minAlloc, *maxAlloc, *regionSize, *iterations)
	case "slab":
		runSlabBench(*pageSize, *blockSize, *iterations)
	default:
		fmt.Fprintf(os.Stderr, "shmbench: unknown mode %q (want buddy or slab)\n", *mode)
		os.Exit(1)
	}
}

func runBuddyBench(minAlloc, maxAlloc, regionSize, n int) {
	region := make([]byte, regionSize)
	b, err := buddy.Create(minAlloc, maxAlloc, region)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shmbench: buddy.Create: %v\n", err)
		os.Exit(1)
	}

	ptrs := make([]unsafe.Pointer, 0, n)
	start := time.Now()
	allocated := 0
	for i := 0; i < n; i++ {
		p := b.Alloc(minAlloc)
		if p == nil {
			break
		}
		ptrs = append(ptrs, p)
		allocated++
	}
	allocElapsed := time.Since(start)

	start = time.Now()
	for _, p := range ptrs {
		b.Free(p, minAlloc)
	}
	freeElapsed := time.Since(start)

	stats := b.Stats()
	fmt.Printf("buddy: allocated=%d alloc_time=%v free_time=%v chunks_used=%d chunks_reclaimed=%d available=%d\n",
		allocated, allocElapsed, freeElapsed, stats.ChunksUsed, stats.ChunksReclaimed, b.Available())
}

// mallocProvider backs runSlabBench with plain heap memory so the benchmark
// runs without mmap privileges.
type mallocProvider struct{}

func (mallocProvider) AllocPage(size, align int) unsafe.Pointer {
	buf := make([]byte, size)
	return unsafe.Pointer(&buf[0])
}

func (mallocProvider) FreePage(ptr unsafe.Pointer, size int) {}

func runSlabBench(pageSize, blockSize, n int) {
	s, err := slab.New(pageSize, blockSize, mallocProvider{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "shmbench: slab.New: %v\n", err)
		os.Exit(1)
	}

	ptrs := make([]unsafe.Pointer, 0, n)
	start := time.Now()
	allocated := 0
	for i := 0; i < n; i++ {
		p := s.Alloc()
		if p == nil {
			break
		}
		ptrs = append(ptrs, p)
		allocated++
	}
	allocElapsed := time.Since(start)

	start = time.Now()
	for _, p := range ptrs {
		s.Free(p)
	}
	freeElapsed := time.Since(start)

	fmt.Printf("slab: allocated=%d alloc_time=%v free_time=%v size=%d\n",
		allocated, allocElapsed, freeElapsed, s.Size())
}
