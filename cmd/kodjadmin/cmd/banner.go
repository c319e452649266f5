package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _  _____  ____       _
 | |/ / _ \|  _ \     | |  __ _  __| |_ __ ___ (_)_ __
 | ' / | | | | | |_   | | / _` + "`" + ` |/ _` + "`" + ` | '_ ` + "`" + ` _ \| | '_ \
 | . \ |_| | |_| | |__| || (_| | (_| | | | | | | | | | |
 |_|\_\___/|____/ \____/  \__,_|\__,_|_| |_| |_|_|_| |_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  KODJ Admin Console - Version %s\x1b[0m\n\n", Version)
}
