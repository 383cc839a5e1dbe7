package main

import (
	"encoding/hex"
	"fmt"
)

func runRead(sa *storeArgs, uid int) {
	dev, st := sa.openStore()
	defer dev.Close()

	buf := make([]byte, *sa.maxPayload)
	n := st.Read(uid, buf)
	if n == 0 {
		fmt.Printf("No data for uid %d\n", uid)
		return
	}
	fmt.Printf("%s\n", hex.EncodeToString(buf[:n]))
}
