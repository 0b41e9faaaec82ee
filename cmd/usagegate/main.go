package main

import (
	"os"

	"github.com/usagegate/usagegate/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
