package flash

import (
	"io"
)

// WordSize is the programming granularity of the flash in bytes.
// Program offsets and lengths must be multiples of it.
const WordSize = 2

// Erased is the value every byte of an erased page reads as.
const Erased = 0xFF

// Device represents a bank of on-chip flash pages. Offsets are relative
// to the start of the device. Programming may only clear bits, so any
// region has to be erased before it can be rewritten.
type Device interface {
	io.ReaderAt

	// PageSize returns the size of a single erase unit in bytes
	PageSize() int

	// NumPages returns the number of pages on the device
	NumPages() int

	// ErasePage resets every byte of the given page to Erased.
	// The device must be unlocked.
	ErasePage(page int) error

	// Program writes p at off. Both off and len(p) must be aligned to
	// WordSize and the device must be unlocked.
	Program(off int64, p []byte) error

	// Unlock enables erasing and programming
	Unlock() error

	// Lock disables erasing and programming
	Lock() error
}

// PageOf returns the page a device offset belongs to
func PageOf(d Device, off int64) int {
	return int(off / int64(d.PageSize()))
}

// PageBase returns the device offset of the first byte of a page
func PageBase(d Device, page int) int64 {
	return int64(page) * int64(d.PageSize())
}

// Aligned reports whether v is aligned to the programming word size
func Aligned(v int64) bool {
	return v%WordSize == 0
}
