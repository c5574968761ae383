// Package store persists the station's configuration bytes. Both regions live
// in one small address space, the way the hardware keeps them in EEPROM.
package store

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Size is the addressable configuration space in bytes.
const Size = 256

var (
	ErrOutOfRange    = errors.New("store: range out of bounds")
	ErrUnknownDriver = errors.New("store: unknown driver")
)

// Store is a byte-addressed configuration space.
type Store interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Open builds the store named by driver ("memory" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func checkRange(n int, off int64) error {
	if off < 0 || off+int64(n) > Size {
		return fmt.Errorf("%w: offset %d length %d", ErrOutOfRange, off, n)
	}
	return nil
}

// Memory is a volatile Store, zeroed at start.
type Memory struct {
	mu  sync.RWMutex
	buf [Size]byte
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(len(p), off); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copy(p, m.buf[off:]), nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(len(p), off); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copy(m.buf[off:], p), nil
}

func (m *Memory) Close() error {
	return nil
}
