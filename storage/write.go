package storage

import (
	"fmt"

	"github.com/sigurn/crc8"
)

// Write stores data as the new authoritative record for uid. The
// record is appended at the write pointer, rotating to the next page
// first when it would not fit the current one.
func (s *Storage) Write(uid int, data []byte) error {
	if len(data) == 0 || len(data) > s.cfg.MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrSize, len(data))
	}
	if uid < 0 || uid >= s.cfg.NumRecords {
		return fmt.Errorf("%w: uid %d", ErrInval, uid)
	}
	if err := s.ensureInit(); err != nil {
		return err
	}

	// the header carries the real payload size, the CRC can start
	// streaming right away
	hdr := encodeDataHdr(dataMagic, uint8(uid), uint16(len(data)))
	crc := crc8.Init(crcTable)
	crc = crc8.Update(crc, hdr[:], crcTable)

	// an odd payload gives its last byte to the footer spare slot so
	// only whole 16 bit words ever hit the flash
	payload := data
	var spare byte
	if len(data)%2 != 0 {
		payload = data[:len(data)-1]
		spare = data[len(data)-1]
	}

	span := int64(dataHdrSize + len(payload) + footerSize)
	if s.pageOf(s.wptr) != s.pageOf(s.wptr+span) {
		if err := s.switchPage(uid); err != nil {
			log.Errorf("error switching pages: %s", err)
			return err
		}
	}

	log.Debugf("new record for uid %d @ 0x%08x", uid, s.wptr)

	start := s.wptr
	if err := s.program(hdr[:], false); err != nil {
		return err
	}
	if len(payload) > 0 {
		crc = crc8.Update(crc, payload, crcTable)
		if err := s.program(payload, false); err != nil {
			return err
		}
	}
	crc = crc8.Update(crc, []byte{spare}, crcTable)
	ftr := encodeFooter(spare, crc8.Complete(crc, crcTable))
	if err := s.program(ftr[:], false); err != nil {
		return err
	}

	// re-read the whole record in place, catching readback corruption
	rec := make([]byte, span)
	if err := s.readAt(rec, start); err != nil {
		return err
	}
	if crc8.Checksum(rec, crcTable) != 0 {
		return fmt.Errorf("%w: readback of record uid %d @ 0x%08x", ErrCRC, uid, start)
	}

	s.index.set(uid, start)
	return nil
}

// Delete stores a removal marker for uid. The record data stays on its
// page until that page gets recycled but is no longer visible, in this
// session or after the next Init.
func (s *Storage) Delete(uid int) error {
	if uid < 0 || uid >= s.cfg.NumRecords {
		return fmt.Errorf("%w: uid %d", ErrInval, uid)
	}
	if err := s.ensureInit(); err != nil {
		return err
	}

	hdr := encodeDataHdr(delMagic, uint8(uid), 0)
	crc := crc8.Init(crcTable)
	crc = crc8.Update(crc, hdr[:], crcTable)
	crc = crc8.Update(crc, []byte{0}, crcTable)
	ftr := encodeFooter(0, crc8.Complete(crc, crcTable))

	span := int64(dataHdrSize + footerSize)
	if s.pageOf(s.wptr) != s.pageOf(s.wptr+span) {
		// relocate everything including the record being deleted: if
		// power is lost before the marker lands the record must still
		// be found by the next scan
		if err := s.switchPage(-1); err != nil {
			log.Errorf("error switching pages: %s", err)
			return err
		}
	}

	start := s.wptr
	if err := s.program(hdr[:], false); err != nil {
		return err
	}
	if err := s.program(ftr[:], false); err != nil {
		return err
	}

	rec := make([]byte, span)
	if err := s.readAt(rec, start); err != nil {
		return err
	}
	if crc8.Checksum(rec, crcTable) != 0 {
		return fmt.Errorf("%w: readback of removal marker uid %d @ 0x%08x", ErrCRC, uid, start)
	}

	s.index.clear(uid)
	return nil
}

// switchPage moves the write frontier to the spare page and recycles
// the oldest one. Records still live on the oldest page are relocated
// to the new write page first, except excludeUID which the caller is
// about to rewrite anyway. Pass a negative excludeUID to relocate
// everything.
func (s *Storage) switchPage(excludeUID int) error {
	page := s.pageOf(s.wptr)
	seq, err := s.pageSeq(page)
	if err != nil {
		return err
	}
	next := wrapInc(page, 1, s.cfg.NumPages)

	nextSeq, err := s.pageSeq(next)
	if err != nil {
		return err
	}
	if nextSeq != seqErased {
		return fmt.Errorf("%w: page %d is not free", ErrStore, next)
	}

	// headering the new page moves the write pointer there
	if err = s.writePageHdr(next, seqInc(seq)); err != nil {
		return err
	}

	victim := wrapInc(next, 1, s.cfg.NumPages)
	for uid := 0; uid < s.cfg.NumRecords; uid++ {
		if uid == excludeUID {
			continue
		}
		off, ok := s.index.get(uid)
		if !ok || s.pageOf(off) != victim {
			continue
		}
		if err = s.relocate(uid); err != nil {
			return err
		}
	}

	if err = s.dev.Unlock(); err != nil {
		return fmt.Errorf("%w: %s", ErrFlash, err)
	}
	err = s.dev.ErasePage(s.firstPage + victim)
	if lerr := s.dev.Lock(); lerr != nil && err == nil {
		err = lerr
	}
	if err != nil {
		return fmt.Errorf("%w: erasing page %d: %s", ErrFlash, victim, err)
	}
	return nil
}

// recoverSpare completes a page rotation interrupted by power loss.
// When the page following the write page does not read as spare it is
// the victim of an unfinished rotation: its live records move to the
// write page and it gets erased, restoring the spare invariant. Records
// already relocated before the crash are indexed at their new location
// and are not copied twice.
func (s *Storage) recoverSpare() error {
	victim := wrapInc(s.pageOf(s.wptr), 1, s.cfg.NumPages)
	seq, err := s.pageSeq(victim)
	if err != nil {
		return err
	}
	if seq == seqErased {
		return nil
	}

	log.Infof("completing interrupted rotation, recycling page %d", victim)
	for uid := 0; uid < s.cfg.NumRecords; uid++ {
		off, ok := s.index.get(uid)
		if !ok || s.pageOf(off) != victim {
			continue
		}
		if err = s.relocate(uid); err != nil {
			return err
		}
	}

	if err = s.dev.Unlock(); err != nil {
		return fmt.Errorf("%w: %s", ErrFlash, err)
	}
	err = s.dev.ErasePage(s.firstPage + victim)
	if lerr := s.dev.Lock(); lerr != nil && err == nil {
		err = lerr
	}
	if err != nil {
		return fmt.Errorf("%w: erasing page %d: %s", ErrFlash, victim, err)
	}
	return nil
}

// relocate rewrites the record for uid at the write pointer. The bytes
// on flash are already correctly encoded, a verbatim copy is enough.
func (s *Storage) relocate(uid int) error {
	off, _ := s.index.get(uid)

	hb := make([]byte, dataHdrSize)
	if err := s.readAt(hb, off); err != nil {
		return err
	}
	rec := make([]byte, recordSpan(decodeDataHdr(hb).size))
	if err := s.readAt(rec, off); err != nil {
		return err
	}

	start := s.wptr
	if err := s.program(rec, true); err != nil {
		return err
	}
	s.index.set(uid, start)
	return nil
}

// writePageHdr positions the write pointer at the start of a page and
// programs its header
func (s *Storage) writePageHdr(page int, seq uint16) error {
	s.wptr = s.pageBase(page)
	hdr := encodePageHdr(seq)
	err := s.program(hdr[:], true)
	if err != nil {
		log.Errorf("error writing header of page %d: %s", page, err)
	}
	return err
}

// program writes p at the write pointer, advancing it on success. With
// verify set the programmed span is read back and must CRC to zero.
func (s *Storage) program(p []byte, verify bool) error {
	start := s.wptr

	if err := s.dev.Unlock(); err != nil {
		return fmt.Errorf("%w: %s", ErrFlash, err)
	}
	err := s.dev.Program(start, p)
	if lerr := s.dev.Lock(); lerr != nil && err == nil {
		err = lerr
	}
	if err != nil {
		return fmt.Errorf("%w: programming %d bytes @ 0x%08x: %s", ErrFlash, len(p), start, err)
	}
	s.wptr += int64(len(p))

	if !verify {
		return nil
	}
	back := make([]byte, len(p))
	if err = s.readAt(back, start); err != nil {
		return err
	}
	if crc8.Checksum(back, crcTable) != 0 {
		return fmt.Errorf("%w: readback @ 0x%08x", ErrCRC, start)
	}
	return nil
}

// seqInc increments a page sequence number skipping the erased sentinel
func seqInc(seq uint16) uint16 {
	return (seq + 1) % seqErased
}
