package main

import (
	"fmt"
	"log"
)

func runInfo(sa *storeArgs) {
	dev, st := sa.openStore()
	defer dev.Close()

	info, err := st.Info()
	if err != nil {
		log.Fatalf("error reading store info: %s", err)
	}

	fmt.Printf("  First page: %d\n", info.FirstPage)
	fmt.Printf("  Num pages: %d\n", info.NumPages)
	fmt.Printf("  Num supported id's: %d\n", info.NumRecords)
	fmt.Printf("  Max payload: %d bytes\n", info.MaxPayload)
	fmt.Printf("  Write pointer on page %d @ 0x%08x\n", info.WritePage, info.WriteOff)

	fmt.Printf("  Data available for %d id's", len(info.Live))
	if len(info.Live) != 0 {
		fmt.Printf(":\n  %v\n", info.Live)
	} else {
		fmt.Printf(".\n")
	}
}
