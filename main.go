package main

import "github.com/behzadon/podium/cmd"

func main() {
	cmd.Execute()
}
