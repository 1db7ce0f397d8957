//go:build !shmalloc_debug

package buddy

// debugAssert is a no-op in release builds; see debug_debug.go.
func debugAssert(cond bool, msg string) {}
