package main

import "github.com/sealkit/seal/cmd/seal/commands"

func main() {
	commands.Execute()
}
