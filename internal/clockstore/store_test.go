package clockstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/replset/internal/cluster"
)

func TestMemStoreClock(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	c, err := s.Clock(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, cluster.ClockNone, c, "unknown wallet reads as absent")

	assert.Equal(t, int64(0), s.Bump("0xabc"), "first write lands at clock 0")
	assert.Equal(t, int64(1), s.Bump("0xabc"))

	c, err = s.Clock(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c)
}

func TestMemStoreClocks(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.Set("0xaaa", 5)
	s.Set("0xbbb", 7)

	clocks, err := s.Clocks(ctx, []string{"0xaaa", "0xbbb", "0xccc"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"0xaaa": 5,
		"0xbbb": 7,
		"0xccc": cluster.ClockNone,
	}, clocks)
}
