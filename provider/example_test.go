package provider_test

import (
	"fmt"

	"github.com/harikrishnan94/shmem-alloc/provider"
	"github.com/harikrishnan94/shmem-alloc/slab"
)

func Example() {
	arena := make([]byte, 1<<20) // 1 MiB
	pages, err := provider.NewBytes(4096, arena)
	if err != nil {
		fmt.Println("provider create failed:", err)
		return
	}

	s, err := slab.New(4096, 64, pages)
	if err != nil {
		fmt.Println("slab create failed:", err)
		return
	}

	p := s.Alloc()
	if p == nil {
		fmt.Println("alloc failed")
		return
	}
	fmt.Println("allocated")

	s.Free(p)
	fmt.Println("freed")

	// Output:
	// allocated
	// freed
}
