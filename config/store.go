package config

import (
	"fmt"
	"io"

	"github.com/viert/properties"
)

const (
	// MaxRecords is the hard limit on the record id space. Record ids
	// are stored in a single byte and 0xFF has to stay distinguishable
	// from erased flash.
	MaxRecords = 255

	defaultPageSize   = 1024
	defaultNumPages   = 4
	defaultNumRecords = 4
	defaultMaxPayload = 256

	defaultLogFileName = "/var/log/fdsserver.log"
)

// Store holds the geometry of a record store. The original library
// fixes these at compile time; here they are explicit parameters
// validated against the flash page size.
type Store struct {
	NumPages   int
	NumRecords int
	MaxPayload int
	PageSize   int
}

// record overhead is a 4 byte data header plus a 2 byte footer,
// the page itself starts with a 4 byte page header
const recordOverhead = 4 + 2 + 4

// Validate checks the store geometry for consistency
func (c *Store) Validate() error {
	if c.PageSize <= 0 || c.PageSize%2 != 0 {
		return fmt.Errorf("page size %d must be a positive even number", c.PageSize)
	}
	if c.NumPages < 2 {
		return fmt.Errorf("at least 2 pages are required, got %d", c.NumPages)
	}
	if c.NumRecords < 1 || c.NumRecords > MaxRecords {
		return fmt.Errorf("number of records %d must be between 1 and %d", c.NumRecords, MaxRecords)
	}
	if c.MaxPayload < 1 || c.MaxPayload+recordOverhead > c.PageSize {
		return fmt.Errorf("max payload %d does not fit a page of %d bytes", c.MaxPayload, c.PageSize)
	}
	return nil
}

// ServerCfg represents an fdsserver config
type ServerCfg struct {
	Bind          string
	ImageFileName string
	LogFileName   string
	Debug         bool
	Store         Store
}

// ReadServerConfig reads and returns an fdsserver config
// from an io.Reader object
func ReadServerConfig(r io.Reader) (*ServerCfg, error) {
	p, err := properties.Read(r)
	if err != nil {
		return nil, err
	}

	cfg := &ServerCfg{}

	cfg.Bind, err = p.GetString("main.bind")
	if err != nil {
		return nil, fmt.Errorf("error reading main.bind: %s", err)
	}

	cfg.ImageFileName, err = p.GetString("flash.image")
	if err != nil {
		return nil, fmt.Errorf("error reading flash.image: %s", err)
	}

	cfg.LogFileName, err = p.GetString("main.log")
	if err != nil {
		cfg.LogFileName = defaultLogFileName
	}

	cfg.Debug, err = p.GetBool("main.debug")
	if err != nil {
		cfg.Debug = false
	}

	cfg.Store.PageSize, err = p.GetInt("flash.page_size")
	if err != nil {
		cfg.Store.PageSize = defaultPageSize
	}

	cfg.Store.NumPages, err = p.GetInt("store.pages")
	if err != nil {
		cfg.Store.NumPages = defaultNumPages
	}

	cfg.Store.NumRecords, err = p.GetInt("store.records")
	if err != nil {
		cfg.Store.NumRecords = defaultNumRecords
	}

	cfg.Store.MaxPayload, err = p.GetInt("store.max_payload")
	if err != nil {
		cfg.Store.MaxPayload = defaultMaxPayload
	}

	err = cfg.Store.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
