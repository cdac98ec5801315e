// The main package for the webharvest executable.
package main

import (
	"github.com/gpiradze/webharvest/cmd"
)

func main() {
	cmd.Execute()
}
