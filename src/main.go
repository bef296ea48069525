package main

import (
	"github.com/VectorBits/facetsplit/src/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		cmd.PrintFatal(err)
	}
}
