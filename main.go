package main

import "github.com/cellsolve/gop2d/cmd"

func main() {
	cmd.Execute()
}
