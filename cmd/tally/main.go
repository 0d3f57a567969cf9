package main

import (
	"github.com/mchmarny/tally/pkg/cli"
)

func main() {
	cli.Execute()
}
