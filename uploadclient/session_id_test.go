package uploadclient

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIDIsStable(t *testing.T) {
	info := FileInfo{Name: "dump.tar.zst", Size: 12_582_912, ModTime: time.UnixMilli(1700000000123)}

	first, err := SessionID(info)
	require.NoError(t, err)
	second, err := SessionID(info)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), first)

	tests := []struct {
		name   string
		change func(FileInfo) FileInfo
	}{
		{name: "name", change: func(i FileInfo) FileInfo { i.Name = "other.tar.zst"; return i }},
		{name: "size", change: func(i FileInfo) FileInfo { i.Size++; return i }},
		{name: "mtime", change: func(i FileInfo) FileInfo { i.ModTime = i.ModTime.Add(time.Millisecond); return i }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other, err := SessionID(tt.change(info))
			require.NoError(t, err)
			assert.NotEqual(t, first, other)
		})
	}
}

func TestSessionIDIgnoresSubMillisecond(t *testing.T) {
	base := time.UnixMilli(1700000000123)
	a, err := SessionID(FileInfo{Name: "a", Size: 1, ModTime: base})
	require.NoError(t, err)
	b, err := SessionID(FileInfo{Name: "a", Size: 1, ModTime: base.Add(500 * time.Microsecond)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
