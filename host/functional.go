package host

import (
	"github.com/sarchlab/hwaccsim/timing/core"
	"github.com/sarchlab/hwaccsim/timing/memaccess"
)

// FunctionalMemory gives the host untimed access to memory through the
// accelerator's memory pipeline. Inputs are loaded and outputs are checked
// through it.
type FunctionalMemory struct {
	acc *core.Accelerator
}

// Write stores data and drops any cached copy of it.
func (m FunctionalMemory) Write(addr uint64, data []byte) error {
	_, err := m.acc.Functional(memaccess.WriteInvalidate, addr, data)
	return err
}

// Read loads size bytes. Dirty cache lines are written back first.
func (m FunctionalMemory) Read(addr uint64, size int) ([]byte, error) {
	return m.acc.Functional(memaccess.Read, addr, make([]byte, size))
}

// Invalidate drops the cached lines overlapping size bytes at addr.
func (m FunctionalMemory) Invalidate(addr uint64, size int) error {
	_, err := m.acc.Functional(memaccess.Invalidate, addr, make([]byte, size))
	return err
}

// Flush writes back every dirty cache line.
func (m FunctionalMemory) Flush() error {
	return m.acc.FlushCaches()
}
