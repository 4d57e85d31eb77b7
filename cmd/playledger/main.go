// Command playledger manages durable progress records for board learning
// games.
package main

import (
	"os"

	"github.com/roach88/playledger/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
