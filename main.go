package main

import "github.com/notargets/meshdist/cmd"

func main() {
	cmd.Execute()
}
