package main

import (
	"fmt"
	"log"
)

func runDel(sa *storeArgs, uid int) {
	dev, st := sa.openStore()
	defer dev.Close()

	err := st.Delete(uid)
	if err != nil {
		log.Fatalf("error deleting record: %s", err)
	}
	fmt.Printf("Deleted uid %d\n", uid)
}
