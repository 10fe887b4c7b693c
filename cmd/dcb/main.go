// Command dcb branches a data-center inventory.
package main

import (
	"os"

	"github.com/kilupskalvis/dcbranch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
