package storage

import (
	"fmt"
	"sort"

	logging "github.com/op/go-logging"
	"github.com/sigurn/crc8"

	"github.com/fjulian79/libfds/config"
	"github.com/fjulian79/libfds/flash"
)

var (
	log = logging.MustGetLogger("libfds")
)

// Storage is the main type representing a record store living in a
// bank of flash pages. It owns the last cfg.NumPages pages of the
// device. Operations are blocking and must be serialized by the caller.
type Storage struct {
	dev       flash.Device
	cfg       config.Store
	firstPage int

	index *recordIndex
	wptr  int64 // device offset of the next record, -1 when unknown
	ready bool
}

// Info is a diagnostic snapshot of the store state
type Info struct {
	FirstPage  int   `json:"first_page"`
	NumPages   int   `json:"num_pages"`
	NumRecords int   `json:"num_records"`
	MaxPayload int   `json:"max_payload"`
	PageSize   int   `json:"page_size"`
	WritePage  int   `json:"write_page"`
	WriteOff   int64 `json:"write_off"`
	Live       []int `json:"live"`
}

// New creates a Storage over the given device. The store occupies the
// last cfg.NumPages pages, the way the original library sits at the
// very end of the usable on-chip flash.
func New(dev flash.Device, cfg config.Store) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInval, err)
	}
	if cfg.PageSize != dev.PageSize() {
		return nil, fmt.Errorf("%w: configured page size is %d, device page size is %d",
			ErrInval, cfg.PageSize, dev.PageSize())
	}
	if dev.NumPages() < cfg.NumPages {
		return nil, fmt.Errorf("%w: device has %d pages, %d required",
			ErrInval, dev.NumPages(), cfg.NumPages)
	}
	return &Storage{
		dev:       dev,
		cfg:       cfg,
		firstPage: dev.NumPages() - cfg.NumPages,
		index:     newRecordIndex(cfg.NumRecords),
		wptr:      -1,
	}, nil
}

// Init scans the flash region rebuilding the record index and
// positioning the write pointer. With doReset set any scan error, and
// an empty region, make Init fall back to Format. With doReset unset
// an empty region is not an error but the store stays uninitialized.
func (s *Storage) Init(doReset bool) error {
	var err error

	if !s.ready {
		s.index.reset()
		s.wptr = -1
		err = s.scan()
		if err == nil && s.wptr >= 0 {
			err = s.recoverSpare()
		}
		if err != nil {
			log.Errorf("error reading the flash region: %s", err)
		}
	}

	if err != nil || s.wptr < 0 {
		if doReset {
			log.Info("erasing the flash region")
			return s.Format()
		}
		log.Debug("erasing the flash region suppressed")
		return err
	}

	s.ready = true
	return nil
}

// Format erases the whole region, headers the first physical page with
// sequence number zero and re-runs Init to establish the write pointer
func (s *Storage) Format() error {
	s.ready = false

	if err := s.dev.Unlock(); err != nil {
		return fmt.Errorf("%w: %s", ErrFlash, err)
	}
	for p := 0; p < s.cfg.NumPages; p++ {
		if err := s.dev.ErasePage(s.firstPage + p); err != nil {
			s.dev.Lock()
			return fmt.Errorf("%w: erasing page %d: %s", ErrFlash, p, err)
		}
	}
	if err := s.dev.Lock(); err != nil {
		return fmt.Errorf("%w: %s", ErrFlash, err)
	}

	s.index.reset()
	if err := s.writePageHdr(0, 0); err != nil {
		return err
	}
	return s.Init(false)
}

// Read copies the current payload for uid into p and returns the
// number of bytes copied. Zero means the record is absent or any error
// occurred, including a failed implicit Init.
func (s *Storage) Read(uid int, p []byte) int {
	if err := s.ensureInit(); err != nil {
		return 0
	}
	if uid < 0 || uid >= s.cfg.NumRecords || len(p) == 0 {
		return 0
	}

	off, ok := s.index.get(uid)
	if !ok {
		return 0
	}

	hb := make([]byte, dataHdrSize)
	if s.readAt(hb, off) != nil {
		return 0
	}
	hdr := decodeDataHdr(hb)

	n := hdr.size
	if n > len(p) {
		n = len(p)
	}

	// the even part of the payload sits right after the header, an odd
	// last byte lives in the footer spare slot
	even := hdr.size &^ 1
	m := n
	if m > even {
		m = even
	}
	if m > 0 {
		if s.readAt(p[:m], off+dataHdrSize) != nil {
			return 0
		}
	}
	if n > even {
		fb := make([]byte, footerSize)
		if s.readAt(fb, off+dataHdrSize+int64(even)) != nil {
			return 0
		}
		p[n-1] = fb[0]
	}
	return n
}

// Info returns a diagnostic snapshot of the store
func (s *Storage) Info() (*Info, error) {
	if err := s.ensureInit(); err != nil {
		return nil, err
	}
	info := &Info{
		FirstPage:  s.firstPage,
		NumPages:   s.cfg.NumPages,
		NumRecords: s.cfg.NumRecords,
		MaxPayload: s.cfg.MaxPayload,
		PageSize:   s.cfg.PageSize,
		WritePage:  s.pageOf(s.wptr),
		WriteOff:   s.wptr,
		Live:       make([]int, 0, s.cfg.NumRecords),
	}
	s.index.each(func(uid int, off int64) {
		info.Live = append(info.Live, uid)
	})
	return info, nil
}

// ensureInit performs the lazy initialization every public operation
// relies on
func (s *Storage) ensureInit() error {
	if s.ready {
		return nil
	}
	if err := s.Init(true); err != nil {
		return err
	}
	if !s.ready {
		return ErrNotReady
	}
	return nil
}

// scan walks the region in ascending page sequence order. Only the
// newest page positions the write pointer, so after a crash in the
// middle of a rotation the pointer still lands in the erased tail of
// the latest headered page.
func (s *Storage) scan() error {
	type pageInfo struct {
		page int
		seq  uint16
	}

	valid := make([]pageInfo, 0, s.cfg.NumPages)
	for p := 0; p < s.cfg.NumPages; p++ {
		seq, err := s.pageSeq(p)
		if err != nil {
			return err
		}
		if seq == seqErased {
			continue
		}
		valid = append(valid, pageInfo{page: p, seq: seq})
	}
	if len(valid) == 0 {
		return nil
	}

	// sequence numbers wrap at 0xFFFF, ordering goes through the signed
	// 16 bit distance from an arbitrary reference
	ref := valid[0].seq
	sort.Slice(valid, func(i, j int) bool {
		return int16(valid[i].seq-ref) < int16(valid[j].seq-ref)
	})

	for i := 1; i < len(valid); i++ {
		if valid[i].seq == valid[i-1].seq {
			return fmt.Errorf("%w: pages %d and %d share sequence number %d",
				ErrStore, valid[i-1].page, valid[i].page, valid[i].seq)
		}
		if valid[i].page != wrapInc(valid[i-1].page, 1, s.cfg.NumPages) {
			return fmt.Errorf("%w: sequence order does not match physical page order", ErrStore)
		}
	}

	for i, pi := range valid {
		if err := s.readPage(pi.page, i == len(valid)-1); err != nil {
			return err
		}
	}
	return nil
}

// readPage walks the records of one page updating the index. Reaching
// the erased tail of the page positions the write pointer there when
// updateWritePointer is set.
func (s *Storage) readPage(page int, updateWritePointer bool) error {
	base := s.pageBase(page)
	end := base + int64(s.dev.PageSize())
	off := base + pageHdrSize

	log.Debugf("reading page %d", page)

	for off < end {
		if end-off < dataHdrSize {
			// a record footer may end two bytes short of the page end,
			// leaving no room for another header
			if updateWritePointer {
				s.wptr = off
			}
			break
		}

		hb := make([]byte, dataHdrSize)
		if err := s.readAt(hb, off); err != nil {
			return err
		}
		hdr := decodeDataHdr(hb)

		if int(hdr.uid) < s.cfg.NumRecords {
			span := int64(recordSpan(hdr.size))
			if off+span > end {
				return fmt.Errorf("%w: record @ 0x%08x overruns its page", ErrData, off)
			}
			rec := make([]byte, span)
			if err := s.readAt(rec, off); err != nil {
				return err
			}
			if crc8.Checksum(rec, crcTable) != 0 {
				return fmt.Errorf("%w: record @ 0x%08x", ErrCRC, off)
			}
			switch hdr.magic {
			case dataMagic:
				log.Debugf("uid %d data @ 0x%08x", hdr.uid, off)
				s.index.set(int(hdr.uid), off)
			case delMagic:
				log.Debugf("uid %d removed @ 0x%08x", hdr.uid, off)
				s.index.clear(int(hdr.uid))
			default:
				log.Errorf("invalid record magic 0x%02x @ 0x%08x", hdr.magic, off)
			}
			off += span
		} else if erasedWord(hb) {
			log.Debugf("end of page %d @ 0x%08x", page, off)
			if updateWritePointer {
				s.wptr = off
			}
			break
		} else {
			return fmt.Errorf("%w: uid %d out of range @ 0x%08x", ErrData, hdr.uid, off)
		}
	}
	return nil
}

// pageSeq reads the sequence number of a page, seqErased when the page
// carries no valid header
func (s *Storage) pageSeq(page int) (uint16, error) {
	hb := make([]byte, pageHdrSize)
	if err := s.readAt(hb, s.pageBase(page)); err != nil {
		return seqErased, err
	}
	return decodePageHdr(hb), nil
}

func (s *Storage) readAt(p []byte, off int64) error {
	_, err := s.dev.ReadAt(p, off)
	if err != nil {
		return fmt.Errorf("%w: reading %d bytes @ 0x%08x: %s", ErrFlash, len(p), off, err)
	}
	return nil
}

func (s *Storage) pageBase(page int) int64 {
	return flash.PageBase(s.dev, s.firstPage+page)
}

func (s *Storage) pageOf(off int64) int {
	return flash.PageOf(s.dev, off) - s.firstPage
}

func wrapInc(v, inc, mod int) int {
	return (v + inc) % mod
}
