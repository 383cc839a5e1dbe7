package main

import (
	"fmt"
	"log"
	"os"

	"github.com/akamensky/argparse"

	"github.com/fjulian79/libfds/config"
	"github.com/fjulian79/libfds/flash"
	"github.com/fjulian79/libfds/storage"
)

// storeArgs holds the flags shared by every command working on an
// existing image
type storeArgs struct {
	filename   *string
	pageSize   *int
	numPages   *int
	numRecords *int
	maxPayload *int
}

func addStoreArgs(cmd *argparse.Command) *storeArgs {
	return &storeArgs{
		filename: cmd.String("f", "file",
			&argparse.Options{Required: true, Help: "flash image filename"}),
		pageSize: cmd.Int("s", "page-size",
			&argparse.Options{Default: 1024, Help: "flash page size in bytes"}),
		numPages: cmd.Int("p", "pages",
			&argparse.Options{Default: 4, Help: "number of pages used by the store"}),
		numRecords: cmd.Int("r", "records",
			&argparse.Options{Default: 4, Help: "number of record ids"}),
		maxPayload: cmd.Int("m", "max-payload",
			&argparse.Options{Default: 256, Help: "maximum payload bytes per record"}),
	}
}

// openStore opens the image file as a flash device and creates a store
// on top of it
func (sa *storeArgs) openStore() (*flash.FileDevice, *storage.Storage) {
	cfg := config.Store{
		NumPages:   *sa.numPages,
		NumRecords: *sa.numRecords,
		MaxPayload: *sa.maxPayload,
		PageSize:   *sa.pageSize,
	}
	dev, err := flash.OpenFile(*sa.filename, cfg.PageSize)
	if err != nil {
		log.Fatalf("error opening flash image: %s", err)
	}
	st, err := storage.New(dev, cfg)
	if err != nil {
		dev.Close()
		log.Fatalf("error creating store: %s", err)
	}
	return dev, st
}

func main() {
	parser := argparse.NewParser("fdsctl", "a tool for manipulating fds flash images")

	createCmd := parser.NewCommand("create", "creates a new erased flash image")
	createFile := createCmd.File("f", "file", os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644,
		&argparse.Options{Required: true, Help: "filename to create"})
	createPageSize := createCmd.Int("s", "page-size",
		&argparse.Options{Default: 1024, Help: "flash page size in bytes"})
	createPages := createCmd.Int("p", "pages",
		&argparse.Options{Default: 4, Help: "total number of pages"})

	infoCmd := parser.NewCommand("info", "prints store status")
	infoArgs := addStoreArgs(infoCmd)

	writeCmd := parser.NewCommand("write", "writes a record")
	writeArgs := addStoreArgs(writeCmd)
	writeUID := writeCmd.Int("u", "uid",
		&argparse.Options{Required: true, Help: "record id"})
	writeData := writeCmd.String("d", "data",
		&argparse.Options{Required: true, Help: "payload as a hex string"})

	readCmd := parser.NewCommand("read", "reads a record")
	readArgs := addStoreArgs(readCmd)
	readUID := readCmd.Int("u", "uid",
		&argparse.Options{Required: true, Help: "record id"})

	delCmd := parser.NewCommand("del", "deletes a record")
	delArgs := addStoreArgs(delCmd)
	delUID := delCmd.Int("u", "uid",
		&argparse.Options{Required: true, Help: "record id"})

	formatCmd := parser.NewCommand("format", "erases the store and writes a fresh page header")
	formatArgs := addStoreArgs(formatCmd)

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Println(err)
		return
	}

	switch {
	case createCmd.Happened():
		runCreate(createFile, *createPageSize, *createPages)
	case infoCmd.Happened():
		runInfo(infoArgs)
	case writeCmd.Happened():
		runWrite(writeArgs, *writeUID, *writeData)
	case readCmd.Happened():
		runRead(readArgs, *readUID)
	case delCmd.Happened():
		runDel(delArgs, *delUID)
	case formatCmd.Happened():
		runFormat(formatArgs)
	}
}
