package main

import "github.com/stepguard/stepguard/internal/cli"

func main() {
	cli.Execute()
}
