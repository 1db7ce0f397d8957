// Package ilist provides intrusive linked list primitives: the node is
// embedded directly in caller-owned storage, so pushing and popping never
// allocates. This is what lets the buddy and slab allocators thread their
// free lists through memory they already manage instead of reaching back
// out to the Go heap.
package ilist

// DListNode is an intrusive doubly linked list node. Embed it by value in
// the struct that should be linkable.
type DListNode struct {
	next *DListNode
	prev *DListNode
}

// DListHead is the sentinel node of a circular doubly linked list. Its
// zero value is not ready to use; call Init first.
type DListHead struct {
	DListNode
}

// Init makes h an empty list. Must be called before any other operation.
func (h *DListHead) Init() {
	h.next = &h.DListNode
	h.prev = &h.DListNode
}

// Empty reports whether the list has no elements.
func (h *DListHead) Empty() bool {
	return h.next == &h.DListNode
}

// PushHead inserts n at the front of the list.
func (h *DListHead) PushHead(n *DListNode) {
	n.next = h.next
	n.prev = &h.DListNode
	h.next.prev = n
	h.next = n
}

// PushTail inserts n at the back of the list.
func (h *DListHead) PushTail(n *DListNode) {
	n.prev = h.prev
	n.next = &h.DListNode
	h.prev.next = n
	h.prev = n
}

// PopHead removes and returns the front node, or nil if the list is empty.
func (h *DListHead) PopHead() *DListNode {
	if h.Empty() {
		return nil
	}
	n := h.next
	Remove(n)
	return n
}

// Remove detaches n from whichever list it is currently linked into.
// n's own pointers are left dangling; it is the caller's responsibility
// not to use n as a list member again without re-inserting it.
func Remove(n *DListNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

// ForEachMutable walks the list calling fn on every node, tolerating fn
// removing the current node (it snapshots next before calling fn). This
// mirrors dlist_foreach_modify from the original C source, needed by
// Slab.Destroy to drain and free every page while iterating.
func (h *DListHead) ForEachMutable(fn func(n *DListNode)) {
	for cur := h.next; cur != &h.DListNode; {
		next := cur.next
		fn(cur)
		cur = next
	}
}
