package main

import (
	"fmt"
	"os"

	"callboard/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "callboard:", err)
		os.Exit(1)
	}
}
