package main

import "ragstack/internal/cli"

func main() {
	cli.Execute()
}
