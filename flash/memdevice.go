package flash

import (
	"fmt"
	"io"
)

// MemDevice is an in-memory flash simulation honoring erase-before-write
// and word-aligned programming, mostly for testing purposes. It can
// simulate a power cut after a configurable number of programmed words.
type MemDevice struct {
	pageSize int
	data     []byte
	locked   bool

	cutArmed  bool
	cutBudget int
	dead      bool

	// EraseCounts holds the number of times each page has been erased
	EraseCounts []int
}

// NewMemDevice creates a locked MemDevice with every page erased
func NewMemDevice(pageSize, numPages int) *MemDevice {
	md := &MemDevice{
		pageSize:    pageSize,
		data:        make([]byte, pageSize*numPages),
		locked:      true,
		EraseCounts: make([]int, numPages),
	}
	for i := range md.data {
		md.data[i] = Erased
	}
	return md
}

// PageSize returns the size of a single page in bytes
func (md *MemDevice) PageSize() int {
	return md.pageSize
}

// NumPages returns the number of pages on the device
func (md *MemDevice) NumPages() int {
	return len(md.data) / md.pageSize
}

func (md *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(md.data)) {
		return 0, fmt.Errorf("read offset %d out of range", off)
	}
	n := copy(p, md.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Program writes p at off clearing bits only, the way NOR flash does.
// Programming a bit back to one silently has no effect, which is exactly
// what makes partially overwritten records detectable by CRC.
func (md *MemDevice) Program(off int64, p []byte) (err error) {
	if md.locked {
		return fmt.Errorf("device is locked")
	}
	if md.dead {
		return fmt.Errorf("power lost")
	}
	if !Aligned(off) || !Aligned(int64(len(p))) {
		return fmt.Errorf("unaligned program at %d len %d", off, len(p))
	}
	if off < 0 || off+int64(len(p)) > int64(len(md.data)) {
		return fmt.Errorf("program at %d len %d out of range", off, len(p))
	}

	words := len(p) / WordSize
	if md.cutArmed && words > md.cutBudget {
		words = md.cutBudget
		err = fmt.Errorf("power lost")
		md.dead = true
	}
	for i := 0; i < words*WordSize; i++ {
		md.data[off+int64(i)] &= p[i]
	}
	if md.cutArmed {
		md.cutBudget -= words
	}
	return err
}

// ErasePage resets every byte of the given page to Erased
func (md *MemDevice) ErasePage(page int) error {
	if md.locked {
		return fmt.Errorf("device is locked")
	}
	if md.dead {
		return fmt.Errorf("power lost")
	}
	if md.cutArmed && md.cutBudget <= 0 {
		md.dead = true
		return fmt.Errorf("power lost")
	}
	if page < 0 || page >= md.NumPages() {
		return fmt.Errorf("page %d out of range", page)
	}
	base := page * md.pageSize
	for i := base; i < base+md.pageSize; i++ {
		md.data[i] = Erased
	}
	md.EraseCounts[page]++
	return nil
}

// Unlock enables erasing and programming
func (md *MemDevice) Unlock() error {
	md.locked = false
	return nil
}

// Lock disables erasing and programming
func (md *MemDevice) Lock() error {
	md.locked = true
	return nil
}

// CutAfterWords arms the power cut simulation. The next n programmed
// words succeed, everything after fails until PowerOn is called.
func (md *MemDevice) CutAfterWords(n int) {
	md.cutArmed = true
	md.cutBudget = n
	md.dead = false
}

// PowerOn disarms the power cut simulation, as if the board rebooted
func (md *MemDevice) PowerOn() {
	md.cutArmed = false
	md.dead = false
}

// Bytes exposes the raw flash content for inspection in tests
func (md *MemDevice) Bytes() []byte {
	return md.data
}
