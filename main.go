package main

import "github.com/smazurov/svcwrap/cmd"

func main() {
	cmd.Execute()
}
