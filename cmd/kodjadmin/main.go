package main

import (
	"os"

	"github.com/awnumar/memguard"

	"github.com/kodj/kodjadmin/cmd/kodjadmin/cmd"
)

func main() {
	code := cmd.Execute()
	memguard.Purge()
	os.Exit(code)
}
