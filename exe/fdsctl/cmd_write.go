package main

import (
	"encoding/hex"
	"fmt"
	"log"
)

func runWrite(sa *storeArgs, uid int, hexData string) {
	data, err := hex.DecodeString(hexData)
	if err != nil {
		log.Fatalf("data is not a valid hex string: %s", err)
	}

	dev, st := sa.openStore()
	defer dev.Close()

	err = st.Write(uid, data)
	if err != nil {
		log.Fatalf("error writing record: %s", err)
	}
	fmt.Printf("Wrote %d bytes for uid %d\n", len(data), uid)
}
