package storage

import "errors"

// Classified errors returned by store operations. Wrapped variants
// carry context, callers classify with errors.Is.
var (
	// ErrStore means a page layout invariant does not hold, e.g. two
	// pages carry the same sequence number or the spare page is not free
	ErrStore = errors.New("page layout error")

	// ErrNotReady means the operation ran before a successful Init
	ErrNotReady = errors.New("store is not initialized")

	// ErrSize means the payload size is outside [1, MaxPayload]
	ErrSize = errors.New("payload size out of range")

	// ErrInval means an argument is invalid, e.g. the uid is out of range
	ErrInval = errors.New("invalid argument")

	// ErrFlash means the flash device reported a failure
	ErrFlash = errors.New("flash error")

	// ErrCRC means a record checksum did not add up on scan or readback
	ErrCRC = errors.New("crc mismatch")

	// ErrData means structurally impossible on-flash content
	ErrData = errors.New("invalid record data")
)
