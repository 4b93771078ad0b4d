package main

import (
	"os"

	"github.com/scan-io-git/scanio-ide/cmd"
)

func main() {
	code := cmd.Execute()
	os.Exit(code)
}
