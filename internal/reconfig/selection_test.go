package reconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSelectionSkipsBlacklist(t *testing.T) {
	s := &StaticSelection{Pool: []string{
		"http://a", "http://b", "http://c", "http://d", "http://e",
	}}

	primary, secondaries, err := s.AutoSelect(context.Background(), []string{"http://b/", "HTTP://d"})
	require.NoError(t, err)
	assert.Equal(t, "http://a", primary)
	assert.Equal(t, []string{"http://c", "http://e"}, secondaries)
}

func TestStaticSelectionPoolExhausted(t *testing.T) {
	s := &StaticSelection{Pool: []string{"http://a", "http://b", "http://c"}}
	_, _, err := s.AutoSelect(context.Background(), []string{"http://a"})
	assert.Error(t, err, "fewer than three candidates outside the blacklist")
}
