package elevation

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	filenames := make([]string, 4)
	for i := range filenames {
		filenames[i] = filepath.Join(dir, fmt.Sprintf("file%d", i))
		assert.NoError(t, os.WriteFile(filenames[i], []byte(fmt.Sprintf("contents of file %d", i)), 0o666))
	}

	fileCache, err := NewFileCache(2)
	assert.NoError(t, err)

	for range 3 {
		for i, filename := range filenames {
			p := make([]byte, 6)
			n, err := fileCache.ReadAt(filename, p, 12)
			assert.NoError(t, err)
			assert.Equal(t, 6, n)
			assert.Equal(t, fmt.Sprintf("file %d", i), string(p))
			assert.True(t, fileCache.Len() <= 2)
		}
	}

	fileCache.Remove(filenames[3])
	assert.Equal(t, 1, fileCache.Len())

	_, err = fileCache.ReadAt(filepath.Join(dir, "missing"), make([]byte, 1), 0)
	assert.IsError(t, err, os.ErrNotExist)
}

func TestRasterFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "file")
	assert.NoError(t, os.WriteFile(filename, []byte("0123456789"), 0o666))

	fileCache, err := NewFileCache(1)
	assert.NoError(t, err)

	for _, tc := range []struct {
		name      string
		fileCache *FileCache
	}{
		{name: "no_file_cache"},
		{name: "file_cache", fileCache: fileCache},
	} {
		t.Run(tc.name, func(t *testing.T) {
			file, err := os.Open(filename)
			assert.NoError(t, err)
			r, err := rasterFile(file, filename, tc.fileCache)
			assert.NoError(t, err)
			p := make([]byte, 3)
			_, err = r.ReadAt(p, 4)
			assert.NoError(t, err)
			assert.Equal(t, "456", string(p))
			assert.NoError(t, r.Close())
		})
	}
	assert.Equal(t, 0, fileCache.Len())
}
