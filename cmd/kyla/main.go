package main

import (
	"os"

	"github.com/oneconcern/kyla/cmd/kyla/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
