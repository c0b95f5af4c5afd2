package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestHashEmptyFile(t *testing.T) {
	path := writeFile(t, "empty", nil)
	digest, err := Hash(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", digest)
}

func TestHashIsDeterministic(t *testing.T) {
	data := make([]byte, 3*1024*1024+17)
	for i := range data {
		data[i] = byte(i * 31)
	}
	a := writeFile(t, "a", data)
	b := writeFile(t, "b", data)

	first, err := Hash(context.Background(), a)
	require.NoError(t, err)
	second, err := Hash(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), first)
}

func TestHashErrors(t *testing.T) {
	_, err := Hash(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Hash(ctx, writeFile(t, "x", []byte("abc")))
	assert.ErrorIs(t, err, context.Canceled)
}
