// cmd/sensord/main.go
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sensord:", err)
		os.Exit(1)
	}
}
