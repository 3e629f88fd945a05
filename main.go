// The main package for the echigo-image executable.
package main

import (
	"github.com/JakeFAU/echigo-image-server/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
