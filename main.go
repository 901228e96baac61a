package main

import "github.com/nextlevelbuilder/relaybus/cmd"

func main() {
	cmd.Execute()
}
