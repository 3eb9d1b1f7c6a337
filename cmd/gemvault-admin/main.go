package main

import (
	"os"

	"github.com/gemvault/gemvault/cmd/gemvault-admin/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
