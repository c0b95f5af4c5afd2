package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.tar", "b.zip", "nested/c.tar", "nested/deep/d.tar"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
	}

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{name: "single level", patterns: []string{dir + "/*.tar"}, want: []string{"a.tar"}},
		{name: "recursive", patterns: []string{dir + "/**/*.tar"}, want: []string{"a.tar", "nested/c.tar", "nested/deep/d.tar"}},
		{name: "overlapping patterns dedupe", patterns: []string{dir + "/*.tar", dir + "/a.*"}, want: []string{"a.tar"}},
		{name: "directories skipped", patterns: []string{dir + "/*"}, want: []string{"a.tar", "b.zip"}},
		{name: "no match", patterns: []string{dir + "/*.iso"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPatterns(tt.patterns)
			require.NoError(t, err)
			var want []string
			for _, name := range tt.want {
				want = append(want, filepath.Join(dir, filepath.FromSlash(name)))
			}
			assert.Equal(t, want, got)
		})
	}

	_, err := expandPatterns([]string{dir + "/[.tar"})
	assert.Error(t, err)
}
