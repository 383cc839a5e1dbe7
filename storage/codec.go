package storage

import (
	"github.com/sigurn/crc8"
)

const (
	pageMagic = 0xAA
	dataMagic = 0x55
	delMagic  = 0x7E

	pageHdrSize = 4
	dataHdrSize = 4
	footerSize  = 2

	// seqErased is the sequence number reported for a page whose header
	// does not decode, which is what an erased page looks like
	seqErased uint16 = 0xFFFF
)

// crcTable holds the plain CRC-8 parameter set (poly 0x07, no init, no
// reflection). With it a span followed by its own checksum CRCs to
// zero, which is the verification rule used on scan and on readback.
var crcTable = crc8.MakeTable(crc8.CRC8)

// encodePageHdr builds the 4 byte page header: magic, sequence number
// in little-endian order and a CRC over the preceding three bytes
func encodePageHdr(seq uint16) [pageHdrSize]byte {
	var b [pageHdrSize]byte
	b[0] = pageMagic
	b[1] = byte(seq)
	b[2] = byte(seq >> 8)
	b[3] = crc8.Checksum(b[:3], crcTable)
	return b
}

// decodePageHdr returns the sequence number stored in a page header or
// seqErased when the magic or the CRC does not add up
func decodePageHdr(b []byte) uint16 {
	if b[0] != pageMagic {
		return seqErased
	}
	if crc8.Checksum(b[:pageHdrSize], crcTable) != 0 {
		return seqErased
	}
	return uint16(b[1]) | uint16(b[2])<<8
}

type dataHdr struct {
	magic byte
	uid   uint8
	size  int
}

// encodeDataHdr builds the 4 byte record header. The size field holds
// the real number of user bytes even when the last one ends up in the
// footer spare slot.
func encodeDataHdr(magic byte, uid uint8, size uint16) [dataHdrSize]byte {
	return [dataHdrSize]byte{magic, uid, byte(size), byte(size >> 8)}
}

// decodeDataHdr decodes a record header without validating it. CRC and
// magic checks are the caller's job so the scanner can tell an invalid
// record from the erased end of a page.
func decodeDataHdr(b []byte) dataHdr {
	return dataHdr{
		magic: b[0],
		uid:   b[1],
		size:  int(uint16(b[2]) | uint16(b[3])<<8),
	}
}

// encodeFooter builds the 2 byte record footer. The spare byte comes
// first so the CRC is always the last byte of the record.
func encodeFooter(spare, crc byte) [footerSize]byte {
	return [footerSize]byte{spare, crc}
}

// recordSpan returns the total on-flash size of a record with the given
// payload size. An odd payload loses its last byte to the footer spare
// slot, so the span is always even.
func recordSpan(payloadSize int) int {
	return (dataHdrSize + payloadSize + footerSize) &^ 1
}

// erasedWord reports whether b reads as erased flash
func erasedWord(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}
