package main

import "github.com/juanibiapina/testrun/cmd"

func main() {
	cmd.Execute()
}
