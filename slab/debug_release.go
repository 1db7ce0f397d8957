//go:build !shmalloc_debug

package slab

// debugAssert is a no-op in release builds; see debug_debug.go.
func debugAssert(cond bool, msg string) {}
