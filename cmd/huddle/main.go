package main

import "github.com/dkeye/Huddle/internal/cli"

func main() {
	cli.Execute()
}
