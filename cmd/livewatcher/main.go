package main

import (
	"livewatcher/internal/cli"
)

func main() {
	cli.Execute()
}
