package elevation

import (
	"errors"
	"io"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// A FileCache bounds the number of simultaneously open files shared by many
// rasters. Least recently used files are closed and transparently reopened
// when next read.
type FileCache struct {
	mutex sync.Mutex
	files *lru.Cache[string, *os.File]
}

// NewFileCache returns a new FileCache that keeps at most size files open.
func NewFileCache(size int) (*FileCache, error) {
	files, err := lru.NewWithEvict(size, func(_ string, file *os.File) {
		fileCacheEvictions.Inc()
		_ = file.Close()
	})
	if err != nil {
		return nil, err
	}
	return &FileCache{
		files: files,
	}, nil
}

// Len returns the number of open files in c.
func (c *FileCache) Len() int {
	return c.files.Len()
}

// ReadAt reads len(p) bytes from filename at offset off.
func (c *FileCache) ReadAt(filename string, p []byte, off int64) (int, error) {
	file, err := c.file(filename)
	if err != nil {
		return 0, err
	}
	n, err := file.ReadAt(p, off)
	if errors.Is(err, os.ErrClosed) {
		// The file was evicted concurrently, reopen it.
		if file, err = c.file(filename); err != nil {
			return 0, err
		}
		n, err = file.ReadAt(p, off)
	}
	return n, err
}

// Remove closes filename if it is open.
func (c *FileCache) Remove(filename string) {
	c.files.Remove(filename)
}

func (c *FileCache) file(filename string) (*os.File, error) {
	if file, ok := c.files.Get(filename); ok {
		return file, nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if file, ok := c.files.Get(filename); ok {
		return file, nil
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	c.files.Add(filename, file)
	return file, nil
}

// A cachedFile reads a single file through a FileCache.
type cachedFile struct {
	fileCache *FileCache
	filename  string
}

func (f *cachedFile) ReadAt(p []byte, off int64) (int, error) {
	return f.fileCache.ReadAt(f.filename, p, off)
}

func (f *cachedFile) Close() error {
	f.fileCache.Remove(f.filename)
	return nil
}

// A readerAtCloser is the file access needed by rasters.
type readerAtCloser interface {
	io.ReaderAt
	io.Closer
}

// rasterFile returns file itself if fileCache is nil. Otherwise it closes
// file and returns a readerAtCloser that reads filename through fileCache.
func rasterFile(file *os.File, filename string, fileCache *FileCache) (readerAtCloser, error) {
	if fileCache == nil {
		return file, nil
	}
	if err := file.Close(); err != nil {
		return nil, err
	}
	return &cachedFile{
		fileCache: fileCache,
		filename:  filename,
	}, nil
}
