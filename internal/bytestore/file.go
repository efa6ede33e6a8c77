package bytestore

import (
	"fmt"
	"os"
	"sync"
)

// FileStore is a production ByteStore backed by a single *os.File, with
// ReadAt/WriteAt/Sync over an append-only byte stream rather than
// fixed-size pages.
type FileStore struct {
	mu   sync.RWMutex
	file *os.File
	size int64
}

// OpenFileStore opens (creating if necessary) the file at path.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("bytestore: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bytestore: stat %s: %w", path, err)
	}
	return &FileStore{file: f, size: info.Size()}, nil
}

func (fs *FileStore) ReadAt(offset int64, length int) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if offset < 0 || length < 0 || offset+int64(length) > fs.size {
		return nil, ErrOutOfRange
	}
	out := make([]byte, length)
	if _, err := fs.file.ReadAt(out, offset); err != nil {
		return nil, fmt.Errorf("bytestore: read_at: %w", err)
	}
	return out, nil
}

func (fs *FileStore) Append(p []byte) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	off := fs.size
	n, err := fs.file.WriteAt(p, off)
	if err != nil {
		return 0, fmt.Errorf("bytestore: append: %w", err)
	}
	fs.size += int64(n)
	return off, nil
}

func (fs *FileStore) Flush() error {
	// os.File has no separate userspace buffer in this implementation (every
	// write goes straight to the fd via WriteAt); Flush is a no-op distinct
	// from Sync, which durably persists to the storage medium.
	return nil
}

func (fs *FileStore) Sync() error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("bytestore: sync: %w", err)
	}
	return nil
}

func (fs *FileStore) Truncate(newSize int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if newSize < 0 {
		return ErrOutOfRange
	}
	if err := fs.file.Truncate(newSize); err != nil {
		return fmt.Errorf("bytestore: truncate: %w", err)
	}
	fs.size = newSize
	return nil
}

func (fs *FileStore) Size() int64 {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.size
}

func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
