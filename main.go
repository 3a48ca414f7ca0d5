package main

import "github.com/gluk-w/cohub/internal/cli"

func main() {
	cli.Execute()
}
