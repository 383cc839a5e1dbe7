package main

import (
	"fmt"
	"log"
)

func runFormat(sa *storeArgs) {
	dev, st := sa.openStore()
	defer dev.Close()

	err := st.Format()
	if err != nil {
		log.Fatalf("error formatting store: %s", err)
	}
	fmt.Println("Store formatted.")
}
