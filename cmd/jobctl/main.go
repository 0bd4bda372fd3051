package main

import "github.com/cuongbtq/recruitq/internal/cli"

// set via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.Execute()
}
