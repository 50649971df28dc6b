package main

import "trenchwatch/mesh/cmd"

func main() {
	cmd.Execute()
}
