// kuri checks kuri modules: it runs the compiler front end and reports
// diagnostics, dumps tokens, trees, types and module interfaces, and serves
// the check service and the language server.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		if !errors.Is(err, errDiagnostics) {
			fmt.Fprintf(os.Stderr, "kuri: %v\n", err)
		}
		os.Exit(1)
	}
}
