package flash

import (
	"fmt"
	"io"
	"os"
)

// FileDevice is a flash image stored in a regular file, used by host
// side tools to inspect and manipulate dumped or emulated flash banks.
// It keeps the same erase-before-write semantics as real flash.
type FileDevice struct {
	f        *os.File
	pageSize int
	numPages int
	locked   bool
}

// CreateImage writes a fully erased flash image of the given geometry
func CreateImage(w io.Writer, pageSize, numPages int) error {
	if pageSize <= 0 || pageSize%WordSize != 0 {
		return fmt.Errorf("invalid page size %d", pageSize)
	}
	if numPages < 1 {
		return fmt.Errorf("invalid number of pages %d", numPages)
	}
	page := make([]byte, pageSize)
	for i := range page {
		page[i] = Erased
	}
	for i := 0; i < numPages; i++ {
		_, err := w.Write(page)
		if err != nil {
			return fmt.Errorf("error writing image page %d: %w", i, err)
		}
	}
	return nil
}

// OpenFile opens an existing flash image. The file size must be a
// multiple of pageSize.
func OpenFile(filename string, pageSize int) (*FileDevice, error) {
	f, err := os.OpenFile(filename, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if pageSize <= 0 || fi.Size() == 0 || fi.Size()%int64(pageSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("image size %d is not a multiple of page size %d", fi.Size(), pageSize)
	}
	return &FileDevice{
		f:        f,
		pageSize: pageSize,
		numPages: int(fi.Size() / int64(pageSize)),
		locked:   true,
	}, nil
}

// PageSize returns the size of a single page in bytes
func (fd *FileDevice) PageSize() int {
	return fd.pageSize
}

// NumPages returns the number of pages in the image
func (fd *FileDevice) NumPages() int {
	return fd.numPages
}

func (fd *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	return fd.f.ReadAt(p, off)
}

// Program writes p at off clearing bits only, matching the behavior
// of the on-chip flash the image stands in for
func (fd *FileDevice) Program(off int64, p []byte) error {
	if fd.locked {
		return fmt.Errorf("device is locked")
	}
	if !Aligned(off) || !Aligned(int64(len(p))) {
		return fmt.Errorf("unaligned program at %d len %d", off, len(p))
	}
	if off < 0 || off+int64(len(p)) > int64(fd.numPages*fd.pageSize) {
		return fmt.Errorf("program at %d len %d out of range", off, len(p))
	}
	cur := make([]byte, len(p))
	_, err := fd.f.ReadAt(cur, off)
	if err != nil {
		return err
	}
	for i := range cur {
		cur[i] &= p[i]
	}
	_, err = fd.f.WriteAt(cur, off)
	return err
}

// ErasePage resets every byte of the given page to Erased
func (fd *FileDevice) ErasePage(page int) error {
	if fd.locked {
		return fmt.Errorf("device is locked")
	}
	if page < 0 || page >= fd.numPages {
		return fmt.Errorf("page %d out of range", page)
	}
	blank := make([]byte, fd.pageSize)
	for i := range blank {
		blank[i] = Erased
	}
	_, err := fd.f.WriteAt(blank, PageBase(fd, page))
	return err
}

// Unlock enables erasing and programming
func (fd *FileDevice) Unlock() error {
	fd.locked = false
	return nil
}

// Lock disables erasing and programming
func (fd *FileDevice) Lock() error {
	fd.locked = true
	return nil
}

// Close closes the underlying image file
func (fd *FileDevice) Close() error {
	return fd.f.Close()
}
