package ilist

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dnode struct {
	DListNode
	val int
}

func TestDListPushPopOrder(t *testing.T) {
	var h DListHead
	h.Init()
	assert.True(t, h.Empty())

	a := &dnode{val: 1}
	b := &dnode{val: 2}
	c := &dnode{val: 3}

	h.PushHead(&a.DListNode)
	h.PushHead(&b.DListNode)
	h.PushTail(&c.DListNode)

	var order []int
	h.ForEachMutable(func(n *DListNode) {
		order = append(order, (*dnode)(unsafe.Pointer(n)).val)
	})
	assert.Equal(t, []int{2, 1, 3}, order)
}

func TestDListPopHead(t *testing.T) {
	var h DListHead
	h.Init()

	a := &dnode{val: 1}
	b := &dnode{val: 2}
	h.PushTail(&a.DListNode)
	h.PushTail(&b.DListNode)

	n := h.PopHead()
	require.NotNil(t, n)
	assert.Equal(t, 1, (*dnode)(unsafe.Pointer(n)).val)
	assert.False(t, h.Empty())

	n = h.PopHead()
	require.NotNil(t, n)
	assert.Equal(t, 2, (*dnode)(unsafe.Pointer(n)).val)
	assert.True(t, h.Empty())

	assert.Nil(t, h.PopHead())
}

func TestDListRemoveFromMiddle(t *testing.T) {
	var h DListHead
	h.Init()

	a := &dnode{val: 1}
	b := &dnode{val: 2}
	c := &dnode{val: 3}
	h.PushTail(&a.DListNode)
	h.PushTail(&b.DListNode)
	h.PushTail(&c.DListNode)

	Remove(&b.DListNode)

	var order []int
	h.ForEachMutable(func(n *DListNode) {
		order = append(order, (*dnode)(unsafe.Pointer(n)).val)
	})
	assert.Equal(t, []int{1, 3}, order)
}

func TestDListForEachMutableToleratesRemoval(t *testing.T) {
	var h DListHead
	h.Init()

	a := &dnode{val: 1}
	b := &dnode{val: 2}
	c := &dnode{val: 3}
	h.PushTail(&a.DListNode)
	h.PushTail(&b.DListNode)
	h.PushTail(&c.DListNode)

	var visited []int
	h.ForEachMutable(func(n *DListNode) {
		d := (*dnode)(unsafe.Pointer(n))
		visited = append(visited, d.val)
		Remove(n)
	})

	assert.Equal(t, []int{1, 2, 3}, visited)
	assert.True(t, h.Empty())
}

type snode struct {
	SListNode
	val int
}

func TestSListPushPop(t *testing.T) {
	var h SListHead
	assert.True(t, h.Empty())

	a := &snode{val: 1}
	b := &snode{val: 2}
	h.PushHead(&a.SListNode)
	h.PushHead(&b.SListNode)

	n := h.PopHead()
	require.NotNil(t, n)
	assert.Equal(t, 2, (*snode)(unsafe.Pointer(n)).val)

	n = h.PopHead()
	require.NotNil(t, n)
	assert.Equal(t, 1, (*snode)(unsafe.Pointer(n)).val)

	assert.True(t, h.Empty())
	assert.Nil(t, h.PopHead())
}
