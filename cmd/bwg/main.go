package main

import "github.com/ogulcanaydogan/bandwidth-guardian/internal/cli"

func main() {
	cli.Execute()
}
