package storage

import (
	"bytes"
	"testing"

	"github.com/sigurn/crc8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/fjulian79/libfds/config"
	"github.com/fjulian79/libfds/flash"
)

type StoreTestSuite struct {
	suite.Suite
	cfg config.Store
	dev *flash.MemDevice
	st  *Storage
}

func (suite *StoreTestSuite) SetupTest() {
	suite.cfg = config.Store{
		NumPages:   4,
		NumRecords: 4,
		MaxPayload: 256,
		PageSize:   1024,
	}
	suite.dev = flash.NewMemDevice(suite.cfg.PageSize, suite.cfg.NumPages)
	st, err := New(suite.dev, suite.cfg)
	suite.Require().Nil(err)
	suite.Require().Nil(st.Format())
	suite.st = st
}

// reboot drops all RAM state and rebuilds the store from flash alone
func (suite *StoreTestSuite) reboot() {
	st, err := New(suite.dev, suite.cfg)
	suite.Require().Nil(err)
	suite.Require().Nil(st.Init(false))
	suite.st = st
}

// erasedPages counts the pages of the region reading as fully erased
func (suite *StoreTestSuite) erasedPages() int {
	data := suite.dev.Bytes()
	count := 0
	for p := 0; p < suite.cfg.NumPages; p++ {
		erased := true
		for _, b := range data[p*suite.cfg.PageSize : (p+1)*suite.cfg.PageSize] {
			if b != 0xFF {
				erased = false
				break
			}
		}
		if erased {
			count++
		}
	}
	return count
}

// payload builds a deterministic pattern of the given size
func payload(seed byte, size int) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

func (suite *StoreTestSuite) TestWriteReadRoundTrip() {
	t := suite.T()
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	err := suite.st.Write(1, data)
	assert.Nil(t, err)

	buf := make([]byte, 4)
	n := suite.st.Read(1, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, data, buf)
}

func (suite *StoreTestSuite) TestOddPayloadSpareByte() {
	t := suite.T()
	data := []byte{0x01, 0x02, 0x03}

	err := suite.st.Write(2, data)
	assert.Nil(t, err)

	buf := make([]byte, 3)
	n := suite.st.Read(2, buf)
	assert.Equal(t, 3, n)
	assert.Equal(t, data, buf)

	// the last payload byte must sit in the footer spare slot on flash
	off, ok := suite.st.index.get(2)
	assert.True(t, ok)
	raw := suite.dev.Bytes()
	assert.Equal(t, byte(dataMagic), raw[off])
	assert.Equal(t, byte(2), raw[off+1])
	assert.Equal(t, []byte{0x01, 0x02}, raw[off+4:off+6])
	assert.Equal(t, byte(0x03), raw[off+6])
}

func (suite *StoreTestSuite) TestDelete() {
	t := suite.T()

	err := suite.st.Write(3, []byte{0xAA})
	assert.Nil(t, err)
	err = suite.st.Delete(3)
	assert.Nil(t, err)

	buf := make([]byte, 8)
	assert.Equal(t, 0, suite.st.Read(3, buf))

	// the marker has to survive a reboot
	suite.reboot()
	assert.Equal(t, 0, suite.st.Read(3, buf))

	// and a later write brings the uid back
	err = suite.st.Write(3, []byte{0xBB, 0xCC})
	assert.Nil(t, err)
	assert.Equal(t, 2, suite.st.Read(3, buf))
}

func (suite *StoreTestSuite) TestPersistence() {
	t := suite.T()
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	err := suite.st.Write(1, data)
	assert.Nil(t, err)

	suite.reboot()

	buf := make([]byte, 4)
	n := suite.st.Read(1, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, data, buf)
}

func (suite *StoreTestSuite) TestLastWriterWins() {
	t := suite.T()

	for i := 0; i < 5; i++ {
		err := suite.st.Write(0, payload(byte(i), 10+i))
		assert.Nil(t, err)
	}

	buf := make([]byte, 64)
	n := suite.st.Read(0, buf)
	assert.Equal(t, 14, n)
	assert.Equal(t, payload(4, 14), buf[:n])

	suite.reboot()
	n = suite.st.Read(0, buf)
	assert.Equal(t, 14, n)
	assert.Equal(t, payload(4, 14), buf[:n])
}

func (suite *StoreTestSuite) TestReadTruncated() {
	t := suite.T()

	err := suite.st.Write(1, payload(0, 100))
	assert.Nil(t, err)

	buf := make([]byte, 10)
	n := suite.st.Read(1, buf)
	assert.Equal(t, 10, n)
	assert.Equal(t, payload(0, 10), buf)
}

func (suite *StoreTestSuite) TestReadAbsent() {
	t := suite.T()
	buf := make([]byte, 8)

	assert.Equal(t, 0, suite.st.Read(1, buf))
	assert.Equal(t, 0, suite.st.Read(99, buf))
	assert.Equal(t, 0, suite.st.Read(-1, buf))

	suite.st.Write(1, []byte{0x01})
	assert.Equal(t, 0, suite.st.Read(1, nil))
}

func (suite *StoreTestSuite) TestValidation() {
	t := suite.T()

	err := suite.st.Write(0, nil)
	assert.ErrorIs(t, err, ErrSize)
	err = suite.st.Write(0, payload(0, suite.cfg.MaxPayload+1))
	assert.ErrorIs(t, err, ErrSize)

	err = suite.st.Write(suite.cfg.NumRecords, []byte{0x01})
	assert.ErrorIs(t, err, ErrInval)
	err = suite.st.Write(-1, []byte{0x01})
	assert.ErrorIs(t, err, ErrInval)

	err = suite.st.Delete(suite.cfg.NumRecords)
	assert.ErrorIs(t, err, ErrInval)
}

func (suite *StoreTestSuite) TestRotation() {
	t := suite.T()

	// 262 bytes per record, three records per page: 30 writes force
	// roughly ten rotations around the region
	var last []byte
	for i := 0; i < 30; i++ {
		last = payload(byte(i), 256)
		err := suite.st.Write(0, last)
		assert.Nil(t, err)
	}

	buf := make([]byte, 256)
	n := suite.st.Read(0, buf)
	assert.Equal(t, 256, n)
	assert.Equal(t, last, buf)

	// once the region has wrapped exactly one page reads as erased
	assert.Equal(t, 1, suite.erasedPages())

	suite.reboot()
	n = suite.st.Read(0, buf)
	assert.Equal(t, 256, n)
	assert.Equal(t, last, buf)
	assert.Equal(t, 1, suite.erasedPages())
}

func (suite *StoreTestSuite) TestRotationPreservesOtherRecords() {
	t := suite.T()
	small := []byte{0x13, 0x37}

	err := suite.st.Write(1, small)
	assert.Nil(t, err)

	// uid 1 has to be relocated every time its page gets recycled
	for i := 0; i < 30; i++ {
		err = suite.st.Write(0, payload(byte(i), 256))
		assert.Nil(t, err)
	}

	buf := make([]byte, 8)
	n := suite.st.Read(1, buf)
	assert.Equal(t, 2, n)
	assert.Equal(t, small, buf[:n])

	suite.reboot()
	n = suite.st.Read(1, buf)
	assert.Equal(t, 2, n)
	assert.Equal(t, small, buf[:n])
}

func (suite *StoreTestSuite) TestWearLeveling() {
	t := suite.T()

	for i := 0; i < 40; i++ {
		err := suite.st.Write(0, payload(byte(i), 256))
		assert.Nil(t, err)
	}

	min, max := suite.dev.EraseCounts[0], suite.dev.EraseCounts[0]
	for _, c := range suite.dev.EraseCounts {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	assert.GreaterOrEqual(t, min, 1)
	assert.LessOrEqual(t, max-min, 2)
}

func (suite *StoreTestSuite) TestLazyInitOnFreshDevice() {
	t := suite.T()

	dev := flash.NewMemDevice(suite.cfg.PageSize, suite.cfg.NumPages)
	st, err := New(dev, suite.cfg)
	assert.Nil(t, err)

	// the first operation formats the empty region implicitly
	err = st.Write(2, []byte{0x42, 0x43})
	assert.Nil(t, err)

	buf := make([]byte, 2)
	assert.Equal(t, 2, st.Read(2, buf))
	assert.Equal(t, []byte{0x42, 0x43}, buf)
}

func (suite *StoreTestSuite) TestInitWithoutResetOnFreshDevice() {
	t := suite.T()

	dev := flash.NewMemDevice(suite.cfg.PageSize, suite.cfg.NumPages)
	st, err := New(dev, suite.cfg)
	assert.Nil(t, err)

	// an empty region is not an error but the store stays down and the
	// flash untouched
	err = st.Init(false)
	assert.Nil(t, err)
	for _, b := range dev.Bytes() {
		if b != 0xFF {
			t.Fatal("flash was modified by Init without reset permission")
		}
	}
}

func (suite *StoreTestSuite) TestDuplicateSequenceFails() {
	t := suite.T()

	// forge a second page carrying the same sequence number as the first
	hdr := encodePageHdr(0)
	suite.dev.Unlock()
	err := suite.dev.Program(int64(suite.cfg.PageSize), hdr[:])
	suite.dev.Lock()
	assert.Nil(t, err)

	st, err := New(suite.dev, suite.cfg)
	assert.Nil(t, err)
	err = st.Init(false)
	assert.ErrorIs(t, err, ErrStore)
}

func (suite *StoreTestSuite) TestIndexFidelity() {
	t := suite.T()

	suite.st.Write(0, payload(1, 17))
	suite.st.Write(1, payload(2, 256))
	suite.st.Write(2, payload(3, 1))
	suite.st.Delete(1)
	for i := 0; i < 10; i++ {
		suite.st.Write(3, payload(byte(i), 200))
	}

	raw := suite.dev.Bytes()
	suite.st.index.each(func(uid int, off int64) {
		hdr := decodeDataHdr(raw[off : off+dataHdrSize])
		assert.Equal(t, byte(dataMagic), hdr.magic)
		assert.Equal(t, uid, int(hdr.uid))
		span := recordSpan(hdr.size)
		assert.Equal(t, byte(0), crc8.Checksum(raw[off:off+int64(span)], crcTable))
	})
}

func (suite *StoreTestSuite) TestInfo() {
	t := suite.T()

	suite.st.Write(1, []byte{0x01, 0x02})
	suite.st.Write(3, []byte{0x03})

	info, err := suite.st.Info()
	assert.Nil(t, err)
	assert.Equal(t, suite.cfg.NumPages, info.NumPages)
	assert.Equal(t, suite.cfg.NumRecords, info.NumRecords)
	assert.Equal(t, []int{1, 3}, info.Live)
	assert.Equal(t, 0, info.WritePage)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func TestSeqInc(t *testing.T) {
	if got := seqInc(0); got != 1 {
		t.Errorf("seqInc(0) is expected to be 1, got %d instead", got)
	}
	// 0xFFFF is reserved for erased pages and must be skipped
	if got := seqInc(0xFFFE); got != 0 {
		t.Errorf("seqInc(0xFFFE) is expected to be 0, got %d instead", got)
	}
}

func TestConfigMismatch(t *testing.T) {
	dev := flash.NewMemDevice(512, 4)
	_, err := New(dev, config.Store{NumPages: 4, NumRecords: 4, MaxPayload: 256, PageSize: 1024})
	if err == nil {
		t.Error("page size mismatch is expected to fail")
	}

	_, err = New(dev, config.Store{NumPages: 8, NumRecords: 4, MaxPayload: 64, PageSize: 512})
	if err == nil {
		t.Error("region larger than the device is expected to fail")
	}
}

func TestRegionAtDeviceEnd(t *testing.T) {
	// the store owns the last pages of the device, everything below
	// stays untouched
	dev := flash.NewMemDevice(1024, 8)
	cfg := config.Store{NumPages: 4, NumRecords: 4, MaxPayload: 256, PageSize: 1024}
	st, err := New(dev, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err = st.Format(); err != nil {
		t.Fatal(err)
	}
	if err = st.Write(0, []byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}

	lower := dev.Bytes()[:4*1024]
	if !bytes.Equal(lower, bytes.Repeat([]byte{0xFF}, len(lower))) {
		t.Error("pages below the region were modified")
	}

	buf := make([]byte, 2)
	if n := st.Read(0, buf); n != 2 {
		t.Errorf("read is expected to return 2, got %d instead", n)
	}
}
