// The main package for the contactfinder executable.
package main

import (
	"github.com/JakeFAU/contactfinder/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
