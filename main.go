package main

import (
	"fmt"

	"github.com/latticedb/lattice/cli"
)

func main() {
	if err := cli.Start(); err != nil {
		fmt.Println(err)
	}
}
