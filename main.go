package main

import "github.com/coverline/benefits-engine/cmd"

func main() {
	cmd.Execute()
}
