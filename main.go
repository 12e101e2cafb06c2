// The main package for the luxcrawl executable.
package main

import (
	"github.com/beautelab/luxcrawl/cmd"
)

func main() {
	cmd.Execute()
}
