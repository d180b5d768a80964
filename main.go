// Package main is the entry point for the chainproto control binary.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/chainproto/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
