package main

import (
	"github.com/mchmarny/sfi/pkg/cli"
)

func main() {
	cli.Execute()
}
