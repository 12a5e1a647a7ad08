// Command invoicectl runs maintenance jobs against the invoice store.
package main

import (
	"fmt"
	"os"

	"github.com/noah-isme/backend-invoice/internal/config"
)

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "invoicectl: %v\n", err)
		os.Exit(1)
	}
}
