// Command key mints development JWTs. It is the token mode of the main binary
// packaged on its own.
package main

import (
	"os"

	"ride-dispatch/internal/cli"
)

func main() {
	os.Exit(cli.RunToken(os.Args[1:], os.Stdout, os.Stderr))
}
