package main

import (
	"os"

	"editdesk/api/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
