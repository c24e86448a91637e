// Command keyctl administers credentials directly against the keyledger
// database, running the same lifecycle service as the HTTP server.
package main

import (
	"fmt"
	"os"
)

func main() {
	a := newApp(os.Stdout)
	if err := runCLI(newRootCmd(a), a, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
