package main

import "github.com/ogulcanaydogan/outagewatch/internal/cli"

func main() {
	cli.Execute()
}
