package main

import "cachewarm/cmd"

func main() {
	cmd.Execute()
}
