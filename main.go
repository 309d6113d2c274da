package main

import "codegraph/cmd"

func main() {
	cmd.Execute()
}
