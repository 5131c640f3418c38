package main

import (
	"github.com/cargohold-io/cargohold/cmd/cargohold/cmd"
)

func main() {
	cmd.Execute()
}
