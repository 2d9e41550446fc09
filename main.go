// The main package for the steamharvest executable.
package main

import (
	"github.com/mlefevre/steamharvest/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
