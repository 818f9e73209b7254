package main

import "github.com/jake-scott/netatmo-cli/cmd"

func main() {
	cmd.Execute()
}
