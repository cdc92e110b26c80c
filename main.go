package main

import (
	"os"

	"github.com/russellromney/borgctl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
