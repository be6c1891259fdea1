package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := Execute(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "eagertimer: %s\n", err)
		os.Exit(1)
	}
}
