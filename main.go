package main

import (
	"github.com/goblincore/ige/cmd"
)

func main() {
	cmd.Execute()
}
