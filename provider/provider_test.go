package provider

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBytes(t *testing.T) {
	tests := []struct {
		name     string
		pagesize int
		arena    int
		wantErr  bool
	}{
		{"valid", 4096, 4096 * 4, false},
		{"pagesize_zero", 0, 4096, true},
		{"arena_empty", 4096, 0, true},
		{"arena_smaller_than_page", 4096, 2048, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBytes(tt.pagesize, make([]byte, tt.arena))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBytesAllocPageBumpsThroughArena(t *testing.T) {
	p, err := NewBytes(4096, make([]byte, 4096*3))
	require.NoError(t, err)

	var pages []unsafe.Pointer
	for i := 0; i < 3; i++ {
		pg := p.AllocPage(4096, 16)
		require.NotNil(t, pg)
		pages = append(pages, pg)
	}
	assert.Nil(t, p.AllocPage(4096, 16), "arena should be exhausted after exactly numPages allocations")

	for i := 1; i < len(pages); i++ {
		assert.NotEqual(t, pages[i-1], pages[i])
	}
}

func TestBytesAllocPageRejectsWrongSize(t *testing.T) {
	p, err := NewBytes(4096, make([]byte, 4096*2))
	require.NoError(t, err)

	assert.Nil(t, p.AllocPage(2048, 16))
}

func TestBytesFreePageReusesPage(t *testing.T) {
	p, err := NewBytes(4096, make([]byte, 4096*2))
	require.NoError(t, err)

	first := p.AllocPage(4096, 16)
	require.NotNil(t, first)

	p.FreePage(first, 4096)
	assert.Equal(t, 2, p.Available())

	reused := p.AllocPage(4096, 16)
	assert.Equal(t, first, reused, "freed page should be handed back out before the bump pointer advances")
}

func TestBytesAvailable(t *testing.T) {
	p, err := NewBytes(4096, make([]byte, 4096*4))
	require.NoError(t, err)

	assert.Equal(t, 4, p.Available())
	p.AllocPage(4096, 16)
	assert.Equal(t, 3, p.Available())
}

func TestMmapAllocFree(t *testing.T) {
	var m Mmap

	pg := m.AllocPage(4096, 16)
	require.NotNil(t, pg)
	assert.Zero(t, uintptr(pg)%4096, "mmap pages come back page-aligned")

	buf := unsafe.Slice((*byte)(pg), 4096)
	buf[0] = 0xAB
	assert.Equal(t, byte(0xAB), buf[0])

	m.FreePage(pg, 4096)
}

func TestMmapAllocZeroSize(t *testing.T) {
	var m Mmap
	assert.Nil(t, m.AllocPage(0, 16))
}
