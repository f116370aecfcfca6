package main

import "github.com/diagramlab/apiserver/cmd"

func main() {
	cmd.Execute()
}
