// Package main is the harvester binary entry point.
package main

import "github.com/newsgrid/harvester/internal/cli"

func main() {
	cli.Execute()
}
