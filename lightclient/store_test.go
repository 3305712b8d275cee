package lightclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodekit-sh/tm-toolkit/header"
)

func blockAt(height int64) LightBlock {
	return LightBlock{SignedHeader: SignedHeader{Header: header.Header{Height: height}}}
}

func TestStoreInsertAndGet(t *testing.T) {
	s := NewStore()
	s.Insert(blockAt(10), StatusTrusted)

	got, status, ok := s.Get(10)
	require.True(t, ok)
	require.Equal(t, StatusTrusted, status)
	require.Equal(t, int64(10), got.Height())

	_, _, ok = s.Get(11)
	require.False(t, ok)
}

func TestStoreHighestByStatus(t *testing.T) {
	s := NewStore()
	s.Insert(blockAt(10), StatusTrusted)
	s.Insert(blockAt(20), StatusVerified)
	s.Insert(blockAt(30), StatusVerified)

	got, ok := s.Highest(StatusVerified)
	require.True(t, ok)
	require.Equal(t, int64(30), got.Height())

	_, ok = s.Highest(StatusUnverified)
	require.False(t, ok)
}
