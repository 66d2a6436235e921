package main

import "github.com/RyanBlaney/sonido-forma/internal/cli"

func main() {
	cli.Execute()
}
