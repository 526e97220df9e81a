package main

import "github.com/kozaktomas/vault-watch/cmd"

func main() {
	cmd.Execute()
}
