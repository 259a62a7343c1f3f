package main

import "github.com/droxporter/droxporter/cmd"

func main() {
	cmd.Execute()
}
