package shmalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuddy(t *testing.T) {
	b, region, err := NewBuddy(4096, 1024*1024, 8*1024*1024)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.NotEmpty(t, region)

	p := b.Alloc(4096)
	assert.NotNil(t, p)
}

func TestNewBuddyRejectsBadRegionSize(t *testing.T) {
	_, _, err := NewBuddy(4096, 1024*1024, 0)
	assert.Error(t, err)
}

func TestNewSlab(t *testing.T) {
	s, err := NewSlab(4096, 64)
	require.NoError(t, err)

	p := s.Alloc()
	require.NotNil(t, p)
	s.Free(p)
}

func TestNewArenaSlab(t *testing.T) {
	arena := make([]byte, 1<<20)
	s, err := NewArenaSlab(4096, 64, arena)
	require.NoError(t, err)

	p := s.Alloc()
	require.NotNil(t, p)
	s.Free(p)
}
