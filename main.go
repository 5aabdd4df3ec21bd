// The main package for the research-crawler executable.
package main

import (
	"github.com/lumira/research-crawler/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
