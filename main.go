// The main package for the screencrawler executable.
package main

import (
	"github.com/JakeFAU/site-screenshot-crawler/cmd"
)

func main() {
	cmd.Execute()
}
