// The main package for the sitewatch executable.
package main

import (
	"os"

	"github.com/JakeFAU/sitewatch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
