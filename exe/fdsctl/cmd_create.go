package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fjulian79/libfds/flash"
)

func runCreate(f *os.File, pageSize int, numPages int) {
	defer f.Close()

	if numPages < 2 {
		log.Fatalln("number of pages can not be less than 2")
	}

	err := flash.CreateImage(f, pageSize, numPages)
	if err != nil {
		log.Fatalf("error creating image: %s", err)
	}

	fmt.Printf("Image created.\nFile size: %d bytes\nPages:     %d x %d bytes\n",
		pageSize*numPages, numPages, pageSize)
}
