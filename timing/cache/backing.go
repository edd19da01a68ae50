package cache

import (
	"github.com/sarchlab/akita/v4/mem/mem"
)

// BackingStore is the next level in the memory hierarchy.
type BackingStore interface {
	Read(addr uint64, size int) ([]byte, error)
	Write(addr uint64, data []byte) error
}

// StorageBacking exposes an Akita storage that is mapped at base as a
// BackingStore.
type StorageBacking struct {
	storage *mem.Storage
	base    uint64
}

// NewStorageBacking creates a StorageBacking. Address base maps to byte 0 of
// the storage.
func NewStorageBacking(storage *mem.Storage, base uint64) *StorageBacking {
	return &StorageBacking{storage: storage, base: base}
}

// Read fetches data from the storage.
func (s *StorageBacking) Read(addr uint64, size int) ([]byte, error) {
	return s.storage.Read(addr-s.base, uint64(size))
}

// Write stores data to the storage.
func (s *StorageBacking) Write(addr uint64, data []byte) error {
	return s.storage.Write(addr-s.base, data)
}
