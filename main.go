package main

import "mangadl/cmd"

func main() {
	cmd.Execute()
}
