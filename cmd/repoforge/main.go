package main

import "repoforge/internal/cli"

func main() {
	cli.Execute()
}
