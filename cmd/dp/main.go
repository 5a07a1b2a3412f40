// Command dp inspects and converts DeePMD-kit model files.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "DeePMD-kit Error: %v\n", err)
		os.Exit(1)
	}
}
