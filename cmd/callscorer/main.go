// Command callscorer scores sales call transcripts with the Quality Call Index.
package main

import (
	"fmt"
	"os"

	"CallScorer/internal/cli"
)

func main() {
	if err := cli.Execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
