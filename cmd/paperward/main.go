package main

import "github.com/paperward/paperward/cmd/paperward/cmd"

func main() {
	cmd.Execute()
}
