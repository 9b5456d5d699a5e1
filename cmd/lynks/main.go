// Command lynks runs the Lynks settlement server and its operator tools.
package main

import (
	"os"

	"github.com/lynks-network/lynks/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
